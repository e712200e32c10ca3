package openai

import (
	"fmt"
	"strings"
)

const summarizerPromptTemplate = `# Search Results Interpreter

You read knowledge base excerpts and give concise, helpful answers.

- Use ONLY the information in the excerpts. Do not guess.
- Lead with the answer, not with where you found it.
- Never copy excerpts verbatim; summarize.
- If the excerpts do not answer the question, say so briefly.

%s`

const imageDescriptionPrompt = `Describe this image for a searchable knowledge base.
Transcribe any visible text exactly. Then describe the subject, layout and any
charts, tables or diagrams in plain sentences. Do not speculate beyond what is visible.`

// buildSummarizerPrompt appends the caller's instruction to the base system prompt.
func buildSummarizerPrompt(instruction string) string {
	return fmt.Sprintf(summarizerPromptTemplate, strings.TrimSpace(instruction))
}

// buildSummarizerInput formats the question and retrieved context as the user turn.
func buildSummarizerInput(question, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User asked: %q\n\n", scrubString(question))
	b.WriteString("Here is the context:\n\n")
	b.WriteString(contextText)
	return b.String()
}

package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/docket/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ImageDescriber implements ai.ImageDescriber using an OpenAI-compatible vision model.
type ImageDescriber struct {
	client llms.Model
	logger *slog.Logger
}

func newImageDescriber(config *ai.Config) (*ImageDescriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	model := config.VisionModel
	if model == "" {
		model = config.ChatModel
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}

	return &ImageDescriber{
		client: client,
		logger: slog.Default().With("component", "openai-describer"),
	}, nil
}

// NewImageDescriber creates a new image describer using the provided configuration.
//
// Returns ai.ImageDescriber interface to enforce abstraction.
func NewImageDescriber(config *ai.Config) (ai.ImageDescriber, error) {
	return newImageDescriber(config)
}

// DescribeImage sends the image inline and returns the model's description.
func (d *ImageDescriber) DescribeImage(ctx context.Context, mimeType string, data []byte) (string, error) {
	d.logger.Debug("describing image", "mime_type", mimeType, "bytes", len(data))

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(imageDescriptionPrompt),
				llms.BinaryPart(mimeType, data),
			},
		},
	}

	response, err := d.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		d.logger.Error("failed to describe image", "err", err)
		return "", err
	}

	if len(response.Choices) < 1 {
		return "", ErrEmptyResponse
	}

	return cleanResponse(response.Choices[0].Content), nil
}

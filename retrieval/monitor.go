package retrieval

import (
	"github.com/poiesic/docket/core"
)

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results of a query.
type Monitor interface {
	Start(query Query)
	AfterResolve(namespace string, ok bool)
	AfterSearch(hits []*core.SearchHit)
	AfterGrouping(sources []*Source)
	Classified(class Class)
	Finish(payload *Payload)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                   {}
func (n *noopMonitor) AfterResolve(_ string, _ bool)   {}
func (n *noopMonitor) AfterSearch(_ []*core.SearchHit) {}
func (n *noopMonitor) AfterGrouping(_ []*Source)       {}
func (n *noopMonitor) Classified(_ Class)              {}
func (n *noopMonitor) Finish(_ *Payload)               {}

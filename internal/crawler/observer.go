package crawler

import "github.com/nao1215/docmirror/internal/model"

// Observer receives a copy of every manifest event the crawler appends.
// Observers run synchronously on the crawl loop and must not block.
type Observer interface {
	OnEvent(ev model.Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev model.Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev model.Event) {
	f(ev)
}

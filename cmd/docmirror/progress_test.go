package main

import (
	"bytes"
	"testing"

	"github.com/nao1215/docmirror/internal/model"
)

func TestProgressObserver(t *testing.T) {
	t.Parallel()

	for _, maxPages := range []int{0, 10} {
		var buf bytes.Buffer
		p := newProgressObserver(&buf, maxPages)
		p.OnEvent(model.Event{Kind: model.EventFetched, URL: "https://docs.example.com/"})
		p.OnEvent(model.Event{Kind: model.EventBlocked, URL: "https://docs.example.com/private"})
		p.OnEvent(model.Event{Kind: model.EventFetched, URL: "https://docs.example.com/guide"})
		p.Finish()

		if buf.Len() == 0 {
			t.Errorf("maxPages=%d: nothing was rendered", maxPages)
		}
	}
}

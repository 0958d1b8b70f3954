package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/nao1215/docmirror/internal/model"
)

// progressObserver advances a progress bar for every crawl outcome.
type progressObserver struct {
	bar *progressbar.ProgressBar
}

// newProgressObserver draws on w. With maxPages <= 0 the bar is a spinner
// since the total is unknown.
func newProgressObserver(w io.Writer, maxPages int) *progressObserver {
	total := int64(maxPages)
	if maxPages <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(w, "\n") //nolint:errcheck // cosmetic
		}),
	)
	return &progressObserver{bar: bar}
}

// OnEvent counts fetches, the unit of the page budget.
func (p *progressObserver) OnEvent(ev model.Event) {
	if ev.Kind == model.EventFetched {
		_ = p.bar.Add(1) //nolint:errcheck // cosmetic
	}
}

// Finish completes the bar.
func (p *progressObserver) Finish() {
	_ = p.bar.Finish() //nolint:errcheck // cosmetic
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/jward/semindex"
)

var passDescriptions = map[string]string{
	semindex.PassDefinitions: "Definitions",
	semindex.PassReferences:  "References ",
}

// passProgress draws one progress bar per indexing pass. The engine
// serializes calls, so no locking is needed here.
type passProgress struct {
	w    io.Writer
	bars map[string]*progressbar.ProgressBar
}

func newPassProgress(w io.Writer) *passProgress {
	return &passProgress{w: w, bars: make(map[string]*progressbar.ProgressBar)}
}

// update matches semindex.ProgressFunc.
func (p *passProgress) update(pass string, done, total int) {
	bar, ok := p.bars[pass]
	if !ok {
		desc, ok := passDescriptions[pass]
		if !ok {
			desc = pass
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files/s"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(p.w)
			}),
		)
		p.bars[pass] = bar
	}
	_ = bar.Set(done)
}

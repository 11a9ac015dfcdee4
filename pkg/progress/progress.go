package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar is safe for concurrent use by transfer workers. A nil *Bar ignores
// every call, which is how callers turn progress output off.
type Bar struct {
	*progressbar.ProgressBar
}

func NewBar(max int64, description string) *Bar {
	return NewBarTo(os.Stdout, max, description)
}

// NewBarTo renders the bar on w.
func NewBarTo(w io.Writer, max int64, description string) *Bar {
	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)

	return &Bar{ProgressBar: bar}
}

func (b *Bar) Increment() {
	b.IncrementBy(1)
}

func (b *Bar) IncrementBy(amount int64) {
	if b == nil || b.ProgressBar == nil {
		return
	}
	_ = b.Add64(amount)
}

func (b *Bar) Finish() {
	if b == nil || b.ProgressBar == nil {
		return
	}
	_ = b.ProgressBar.Finish()
}

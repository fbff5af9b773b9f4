package utils

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// ProgressCallback reports item-level progress of a section such as an upload.
type ProgressCallback func(section string, current int, total int, description string)

// BarProgress renders percentages on a terminal bar. Values lower than the last
// one shown are ignored.
type BarProgress struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	last int
}

func NewBarProgress(w io.Writer, description string) *BarProgress {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)
	return &BarProgress{bar: bar, last: -1}
}

func (b *BarProgress) Percent(p int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p <= b.last {
		return
	}
	if p > 100 {
		p = 100
	}
	b.last = p
	_ = b.bar.Set(p)
}

func (b *BarProgress) Describe(description string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.Describe(description)
}

func (b *BarProgress) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
}

// Callback adapts the bar to a ProgressCallback.
func (b *BarProgress) Callback() ProgressCallback {
	return func(section string, current int, total int, description string) {
		if total <= 0 {
			return
		}
		b.Describe(section + " " + description)
		b.Percent(current * 100 / total)
	}
}

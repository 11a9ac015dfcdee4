package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilBarIsSilent(t *testing.T) {
	var bar *Bar

	assert.NotPanics(t, func() {
		bar.Increment()
		bar.IncrementBy(10)
		bar.Finish()
	})
}

func TestBarCountsRows(t *testing.T) {
	var out bytes.Buffer
	bar := NewBarTo(&out, 10, "Copying")

	bar.IncrementBy(4)
	bar.Increment()
	assert.Equal(t, 5.0, bar.State().CurrentPercent*10)

	bar.IncrementBy(5)
	bar.Finish()
	assert.True(t, bar.IsFinished())
}

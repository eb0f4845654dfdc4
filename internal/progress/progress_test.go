package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled(t *testing.T) {
	assert.True(t, Enabled("always", nil))
	assert.False(t, Enabled("never", nil))
	assert.False(t, Enabled("auto", nil))
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter = New(&bytes.Buffer{}, false)
	assert.Nil(t, r)
	tr := r.Start("readability", 3)
	tr.Increment()
	tr.Done()
}

func TestReporter_RunsToCompletion(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)
	tr := r.Start("duration", 2)
	tr.Increment()
	tr.Increment()
	tr.Done()

	early := r.Start("asr", 5)
	early.Increment()
	early.Done()
}

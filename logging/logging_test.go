package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputSplitterRoutesErrorsToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	s := &OutputSplitter{Stdout: &out, Stderr: &errOut}

	_, err := s.Write([]byte("time=now level=info msg=hello\n"))
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "hello")
	assert.Empty(t, errOut.String())

	_, err = s.Write([]byte("time=now level=error msg=boom\n"))
	assert.NoError(t, err)
	assert.Contains(t, errOut.String(), "boom")
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	logger := New(Config{Level: "not-a-level"})
	assert.Equal(t, "info", logger.GetLevel().String())
}

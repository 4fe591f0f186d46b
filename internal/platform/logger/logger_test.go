package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json at warn drops info", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(&buf, "warn", "json")
		require.NoError(t, err)
		l.Info("hidden")
		l.Warn("shown", "k", "v")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"msg":"shown"`)
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(&buf, "debug", "text")
		require.NoError(t, err)
		l.Debug("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, "loud", "json")
		assert.Error(t, err)
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, "info", "xml")
		assert.Error(t, err)
	})
}

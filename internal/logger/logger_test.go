package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("text")
	SetLevel("WARN")
	defer func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
	}()

	Info("hidden %d", 1)
	Warn("visible %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "visible 2")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")
	SetLevel("DEBUG")
	defer func() {
		SetOutput(os.Stdout)
		SetFormat("text")
		SetLevel("INFO")
	}()

	Debug("created %s", "abc")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "created abc", entry["message"])
	assert.Equal(t, "dittocat", entry["service"])
}

func TestOpenOutput(t *testing.T) {
	w, err := OpenOutput("stdout")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)

	w, err = OpenOutput("STDERR")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)

	path := t.TempDir() + "/dittocat.log"
	w, err = OpenOutput(path)
	require.NoError(t, err)
	f, ok := w.(*os.File)
	require.True(t, ok)
	_ = f.Close()
}

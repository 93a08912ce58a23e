package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"info":    LevelInfo,
		"DEBUG":   LevelDebug,
		"trace":   LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseLevel(raw), "ParseLevel(%q)", raw)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewWithWriter(buf, LevelInfo)
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewWithWriter(buf, LevelInfo)
	l.SetFormat("json")
	l.WithFields(map[string]interface{}{"file": "a.nessus"}).Info("uploaded")
	assert.Contains(t, buf.String(), `"file":"a.nessus"`)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Infof("x")
	l.Errorf("y")
	l.SetLevel(LevelDebug)
	assert.NotNil(t, l.WithFields(nil))
}

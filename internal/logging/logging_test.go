// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Writer: &buf})
	log.With(String("component", "pvt")).Info(context.Background(), "epoch",
		Int("tick", 3), Float64("gdop", 1.5), Bool("converged", true), Error(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "epoch", rec["msg"])
	assert.Equal(t, "pvt", rec["component"])
	assert.Equal(t, 3.0, rec["tick"])
	assert.Equal(t, 1.5, rec["gdop"])
	assert.Equal(t, true, rec["converged"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Writer: &buf})
	ctx := context.Background()

	log.Debug(ctx, "hidden")
	log.Info(ctx, "hidden")
	log.Warn(ctx, "shown", Any("chan", 3))
	log.Error(ctx, "also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown chan=3")
	assert.Contains(t, out, "also shown")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("Debug").Level().String())
	assert.Equal(t, "WARN", parseLevel("warning").Level().String())
	assert.Equal(t, "ERROR", parseLevel("error").Level().String())
	assert.Equal(t, "INFO", parseLevel("").Level().String())
}

func TestNoop(t *testing.T) {
	log := Noop().With(String("a", "b"))
	assert.NotPanics(t, func() {
		log.Error(context.Background(), "dropped", Error(nil))
	})
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	log := NewFromEnv()
	s, ok := log.(*slogger)
	require.True(t, ok)
	assert.False(t, s.l.Enabled(context.Background(), parseLevel("warn").Level()))
	assert.True(t, s.l.Enabled(context.Background(), parseLevel("error").Level()))
}

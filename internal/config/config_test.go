package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() *Config {
	cfg := Default()
	cfg.Targets = []string{"a.txt"}
	cfg.Command = []string{"echo", "hi"}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultDelay, cfg.Delay)
	assert.Equal(t, "SIGTERM", cfg.Signal)
	_, ok := cfg.Timeout()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Targets = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoTargets)

	cfg = valid()
	cfg.Command = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoCommand)

	cfg = valid()
	cfg.Command = []string{""}
	assert.ErrorIs(t, cfg.Validate(), ErrNoCommand)

	cfg = valid()
	cfg.Signal = ""
	assert.ErrorIs(t, cfg.Validate(), ErrNoSignal)

	cfg = valid()
	cfg.Delay = -time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrNegativeDuration)

	cfg = valid()
	timeout := -time.Second
	cfg.IdleTimeout = &timeout
	assert.ErrorIs(t, cfg.Validate(), ErrNegativeDuration)
}

func TestParseAndApply(t *testing.T) {
	file := `
clear: true
postpone: true
timeout: 30
delay: 250
poll: 500ms
signal: INT
schedule: "@every 1m"
paths: [src, go.mod]
command: [go, test, ./...]
`
	raw := &Raw{}
	require.NoError(t, raw.Parse(strings.NewReader(file)))

	cfg := Default()
	require.NoError(t, raw.Apply(cfg))

	assert.True(t, cfg.ClearTerm)
	assert.True(t, cfg.Postpone)
	assert.False(t, cfg.Recursive)
	timeout, ok := cfg.Timeout()
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll)
	assert.Equal(t, "INT", cfg.Signal)
	assert.Equal(t, "@every 1m", cfg.Schedule)
	assert.Equal(t, []string{"src", "go.mod"}, cfg.Targets)
	assert.Equal(t, []string{"go", "test", "./..."}, cfg.Command)
}

func TestApplyKeepsUnsetFields(t *testing.T) {
	raw := &Raw{}
	require.NoError(t, raw.Parse(strings.NewReader("recursive: true\n")))

	cfg := Default()
	require.NoError(t, raw.Apply(cfg))

	assert.True(t, cfg.Recursive)
	assert.Equal(t, DefaultDelay, cfg.Delay)
	assert.Equal(t, DefaultSignal, cfg.Signal)
}

func TestParseEmpty(t *testing.T) {
	raw := &Raw{}

	assert.NoError(t, raw.Parse(strings.NewReader("")))
}

func TestParseUnknownField(t *testing.T) {
	raw := &Raw{}

	assert.Error(t, raw.Parse(strings.NewReader("clearr: true\n")))
}

func TestApplyInvalidPoll(t *testing.T) {
	raw := &Raw{Poll: "often"}

	assert.Error(t, raw.Apply(Default()))
}

func TestReadTargets(t *testing.T) {
	input := "a.txt\n\nsrc dir\r\n   \nb.go"

	targets, err := ReadTargets(strings.NewReader(input))

	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "src dir", "b.go"}, targets)
}

func TestReadTargetsEmpty(t *testing.T) {
	targets, err := ReadTargets(strings.NewReader("\n\n"))

	require.NoError(t, err)
	assert.Empty(t, targets)
}

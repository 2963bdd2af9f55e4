package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cynic/internal/config"
	"cynic/internal/judge"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"judge", "serve", "policy", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestBuildCoreRegistersBuiltins(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false

	c, err := buildCore(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, c.registry.Len())
	for _, id := range []string{"guardian", "analyst", "coherence"} {
		_, ok := c.registry.Get(id)
		assert.True(t, ok, "analyzer %s not registered", id)
	}
}

func TestVerdictBadgeCoversAllVerdicts(t *testing.T) {
	for _, v := range judge.Verdicts {
		badge := verdictBadge(judge.Verdict(v))
		assert.NotEmpty(t, badge)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2.5s", formatDuration(2500*time.Millisecond))
	assert.Equal(t, "1.5m", formatDuration(90*time.Second))
}

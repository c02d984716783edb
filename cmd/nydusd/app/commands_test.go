package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crutech/nydus/pkg/logger"
)

// The debug flag is only parsed during Execute, so the logger has to be
// re-initialized by the root command itself.
func TestDebugFlagEnablesDebugLogging(t *testing.T) {
	previous := logger.Get()
	t.Cleanup(func() {
		logger.Set(previous)
		viper.Set("debug", false)
	})

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--debug"})
	require.NoError(t, cmd.Execute())

	assert.True(t, logger.Get().Enabled(context.Background(), slog.LevelDebug))
}

package main

import (
	"testing"

	"codeberg.org/touchpath/server/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}

	assert.ElementsMatch(t, []string{"migrate", "expire-handoffs", "retry-completions", "cleanup-touches"}, names)
}

func TestRootCmd_FlagDefaults(t *testing.T) {
	defaults := config.DefaultSweepFlags()

	tests := []struct {
		command string
		flag    string
		want    int
	}{
		{"expire-handoffs", "hours", defaults.HandoffMaxAgeHours},
		{"retry-completions", "limit", defaults.RetryLimit},
		{"cleanup-touches", "days", defaults.TouchRetentionDays},
	}

	root := newRootCmd()

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd, _, err := root.Find([]string{tt.command})
			require.NoError(t, err)

			value, err := cmd.Flags().GetInt(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, value)
		})
	}
}

func TestRootCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})

	err := root.Execute()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

package cli

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSweepSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := startSweepSchedule("", nil, logger)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = startSweepSchedule("every tuesday", nil, logger)
	assert.Error(t, err)

	c, err = startSweepSchedule("0 9 1 * *", nil, logger)
	require.NoError(t, err)
	require.NotNil(t, c)
	<-c.Stop().Done()
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "basket version dev\n", out.String())
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"consume"},
		{"budget", "check"}, {"budget", "sweep"}, {"budget", "status"},
		{"users", "export"}, {"users", "import"}, {"users", "backfill-credits"},
		{"pricing", "list"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

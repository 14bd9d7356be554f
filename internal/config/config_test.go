package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "basket.events", cfg.AMQP.Queue)
	assert.Equal(t, 4, cfg.AMQP.Workers)
	assert.Equal(t, 50.0, cfg.Budget.ThresholdPct)
	assert.False(t, cfg.Budget.RequireOptIn)
	assert.Empty(t, cfg.Budget.SweepSchedule)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, int64(5), cfg.Credits.SignupGrant)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	loc, err := cfg.Budget.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad_FromFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
storage:
  driver: mongo
  mongo_uri: mongodb://localhost:27017
server:
  listen: ":9090"
budget:
  threshold_pct: 80
  require_opt_in: true
  timezone: America/New_York
  sweep_schedule: "0 9 * * *"
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Storage.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.MongoURI)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 80.0, cfg.Budget.ThresholdPct)
	assert.True(t, cfg.Budget.RequireOptIn)
	assert.Equal(t, "0 9 * * *", cfg.Budget.SweepSchedule)
	assert.Equal(t, "debug", cfg.Logging.Level)

	loc, err := cfg.Budget.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BASKET_LOGGING_LEVEL", "error")
	t.Setenv("BASKET_SERVER_LISTEN", ":7070")
	t.Setenv("BASKET_EMAIL_RESEND_API_KEY", "re_test")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "re_test", cfg.Email.ResendAPIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BASKET_AI_PROVIDER=anthropic\nBASKET_AI_ANTHROPIC_API_KEY=sk-ant\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("BASKET_AI_PROVIDER")
		os.Unsetenv("BASKET_AI_ANTHROPIC_API_KEY")
	})

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "sk-ant", cfg.AI.AnthropicAPIKey)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("invalid: [yaml"), 0o644))
	_, err := config.Load(bad)
	assert.Error(t, err)

	for name, body := range map[string]string{
		"driver.yaml":    "storage:\n  driver: postgres\n",
		"provider.yaml":  "ai:\n  provider: gemini\n",
		"threshold.yaml": "budget:\n  threshold_pct: 150\n",
		"timezone.yaml":  "budget:\n  timezone: Mars/Olympus\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := config.Load(path)
		assert.Error(t, err, name)
	}
}

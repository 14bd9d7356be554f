package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/basket-guardian/internal/app"
	"github.com/ogulcanaydogan/basket-guardian/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "basket",
	Short: "Basket Guardian - backend for shared grocery lists",
	Long: `Basket Guardian runs the backend of a shared grocery-list app: budget alerts,
list sharing notifications, AI receipt scanning with credit accounting and
user lifecycle cleanup. It serves an HTTP API, consumes trigger events from a
queue and provides admin commands.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.basket/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initApp loads config and wires every service.
func initApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.NewLogger(cfg))
}

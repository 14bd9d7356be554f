package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/basket-guardian/internal/consumer"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Process trigger events from the AMQP queue",
	RunE:  runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
	consumeCmd.Flags().IntP("workers", "w", 0, "Worker count (default from config)")
}

func runConsume(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config.AMQP
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Workers = n
	}

	c, err := consumer.New(consumer.Config{
		URL:            cfg.URL,
		Queue:          cfg.Queue,
		Prefetch:       cfg.Prefetch,
		Workers:        cfg.Workers,
		MessageTimeout: cfg.MessageTimeout,
	}, a.Dispatcher, a.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return c.Run(ctx)
}

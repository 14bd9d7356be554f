package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/basket-guardian/pkg/providers"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect AI vision model pricing",
}

var pricingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all providers and their model pricing",
	RunE:  runPricingList,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingListCmd)
}

func runPricingList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := providers.DefaultRegistry(cfg.Pricing.Dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tMODEL\tINPUT ($/1M)\tOUTPUT ($/1M)\tCACHED INPUT ($/1M)\n")

	for _, name := range registry.List() {
		p, err := registry.Get(name)
		if err != nil {
			return err
		}
		for _, m := range p.Models() {
			cached := "-"
			if m.CachedInputPerMillion > 0 {
				cached = fmt.Sprintf("$%.2f", m.CachedInputPerMillion)
			}
			fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.2f\t%s\n",
				p.Name(), m.Model,
				m.InputPerMillion, m.OutputPerMillion,
				cached,
			)
		}
	}
	return w.Flush()
}

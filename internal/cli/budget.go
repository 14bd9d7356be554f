package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and run budget alerts",
}

var budgetCheckCmd = &cobra.Command{
	Use:   "check <user-id>",
	Short: "Re-evaluate one user's monthly budget and alert if due",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetCheck,
}

var budgetSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate every user with a monthly budget",
	RunE:  runBudgetSweep,
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status <user-id>",
	Short: "Show a user's spending for a period",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetStatus,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetCheckCmd)
	budgetCmd.AddCommand(budgetSweepCmd)
	budgetCmd.AddCommand(budgetStatusCmd)

	budgetStatusCmd.Flags().StringP("period", "P", "monthly", "Period (daily, weekly, monthly)")
}

func runBudgetCheck(cmd *cobra.Command, args []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Monitor.CheckUser(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:      %s\n", d.UserID)
	fmt.Fprintf(out, "Outcome:   %s\n", d.Outcome)
	if d.MonthlyBudget > 0 {
		fmt.Fprintf(out, "Budget:    $%.2f\n", d.MonthlyBudget)
		fmt.Fprintf(out, "Spent:     $%.2f\n", d.TotalSpent)
		fmt.Fprintf(out, "Usage:     %.1f%%\n", d.PercentageSpent)
	}
	return nil
}

func runBudgetSweep(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Monitor.Sweep(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evaluated %d users, %d failed\n", len(report.Outcomes), len(report.Failures()))
	if failures := report.Failures(); len(failures) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "USER\tERROR\n")
		for _, f := range failures {
			fmt.Fprintf(w, "%s\t%v\n", f.Recipient, f.Err)
		}
		w.Flush()
	}
	return nil
}

func runBudgetStatus(cmd *cobra.Command, args []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	period, _ := cmd.Flags().GetString("period")
	s, err := a.Monitor.Summary(cmd.Context(), args[0], model.Period(period))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "USER\tPERIOD\tFROM\tTO\tTRIPS\tSPENT\tBUDGET\tUSAGE\n")
	usage := "-"
	if s.Budget > 0 {
		usage = fmt.Sprintf("%.1f%%", s.TotalSpent/s.Budget*100)
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.2f\t$%.2f\t%s\n",
		s.UserID, s.Period,
		s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"),
		s.RecordCount, s.TotalSpent, s.Budget, usage,
	)
	return w.Flush()
}

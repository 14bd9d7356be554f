package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Admin operations over all users",
}

var usersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every user as JSON lines",
	RunE:  runUsersExport,
}

var usersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore users from an export file ('-' for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersImport,
}

var usersBackfillCmd = &cobra.Command{
	Use:   "backfill-credits",
	Short: "Set every user's AI credit balance",
	RunE:  runUsersBackfill,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersExportCmd)
	usersCmd.AddCommand(usersImportCmd)
	usersCmd.AddCommand(usersBackfillCmd)

	usersExportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	usersBackfillCmd.Flags().Int64("credits", 0, "Credit balance to set")
	_ = usersBackfillCmd.MarkFlagRequired("credits")
}

func runUsersExport(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	n, err := a.Users.Export(cmd.Context(), w)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d users\n", n)
	return nil
}

func runUsersImport(cmd *cobra.Command, args []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	res, err := a.Users.Import(cmd.Context(), r)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d users in %d batches\n", res.Processed, res.Batches)
	return nil
}

func runUsersBackfill(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	amount, _ := cmd.Flags().GetInt64("credits")
	res, err := a.Users.BackfillCredits(cmd.Context(), amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %d credits on %d users in %d batches\n", amount, res.Processed, res.Batches)
	return nil
}

package cmd

import (
	"encoding/json"
	"strings"

	"github.com/sarchlab/miniprof/monitoring"
	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <request-id>...",
	Short: "Print the stored profiles of requests",
	Long: `Print the step tree and the per-tag statistics of the requests. ` +
		`IDs may also be given as one comma separated list. The store must ` +
		`outlive the process that recorded the profiles, so the memory ` +
		`backend never finds anything.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}

		ids := monitoring.ParseIDs(strings.Join(args, ","))

		results, err := monitoring.FetchResults(
			cmd.Context(), s.store, ids, s.logger)
		if err != nil {
			return err
		}

		if showJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(results)
		}

		return monitoring.WriteText(cmd.OutOrStdout(), results)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false,
		"print the results as JSON")
	rootCmd.AddCommand(showCmd)
}

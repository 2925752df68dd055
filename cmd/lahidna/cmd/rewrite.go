package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [url...]",
	Short: "Apply the search rewrite rule",
	Long: `Rewrite search URLs so results in unwanted languages are filtered out.
The unwanted languages come from the stored preference. With --rule the
declarative redirect rule is printed as JSON instead.

Examples:
  lahidna rewrite "https://www.google.com/search?q=kyiv"
  lahidna rewrite --rule`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), GetConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		if showRule, _ := cmd.Flags().GetBool("rule"); showRule {
			rule, ok := a.rules.Rule()
			if !ok {
				_, _ = fmt.Fprintln(out, "null")
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rule)
		}
		if len(args) == 0 {
			return fmt.Errorf("requires at least one URL")
		}
		for _, raw := range args {
			rewritten, _, err := a.rules.RewriteString(raw)
			if err != nil {
				return fmt.Errorf("invalid url %q: %w", raw, err)
			}
			_, _ = fmt.Fprintln(out, rewritten)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rewriteCmd)
	rewriteCmd.Flags().Bool("rule", false, "print the declarative redirect rule")
}

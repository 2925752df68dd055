package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lahidna/internal/router"
)

var routeCmd = &cobra.Command{
	Use:   "route [host|url...]",
	Short: "Show which site adapter handles a host",
	Long: `Print the adapter the router picks for each hostname or URL, or
list every adapter with --list.

Examples:
  lahidna route www.google.com.ua
  lahidna route https://m.youtube.com/watch?v=1
  lahidna route --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if list, _ := cmd.Flags().GetBool("list"); list {
			for _, name := range router.Adapters() {
				_, _ = fmt.Fprintln(out, name)
			}
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("requires at least one host or URL")
		}
		for _, arg := range args {
			host := routeHost(arg)
			adapter := "-"
			if e, ok := router.Lookup(host); ok {
				adapter = e.Adapter
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", host, adapter)
		}
		return nil
	},
}

func routeHost(arg string) string {
	if strings.Contains(arg, "://") {
		if u, err := url.Parse(arg); err == nil {
			return u.Hostname()
		}
	}
	return arg
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().Bool("list", false, "list all adapters in routing order")
}

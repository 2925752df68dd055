package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lahidna/internal/consent"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/reconcile"
)

// runCmd loads one page and runs the reconciliation flow on it.
var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Run the language flow for one page",
	Long: `Load a page, route it to its site adapter and run the language flow.

When the adapter wants a change the call to action is printed and the answer
is taken from --yes/--no or read from stdin.

Examples:
  lahidna run https://www.youtube.com/
  lahidna run https://www.google.com/search?q=kyiv --yes
  lahidna run https://uk.wikipedia.org/ --html saved.html --no`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		yes, _ := cmd.Flags().GetBool("yes")
		no, _ := cmd.Flags().GetBool("no")
		if yes && no {
			return fmt.Errorf("--yes and --no are mutually exclusive")
		}
		htmlFile, _ := cmd.Flags().GetString("html")

		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer func() { _ = a.Close() }()

		nav := &page.RecordingNavigator{}
		doc, err := loadPage(ctx, a, args[0], htmlFile, nav)
		if err != nil {
			return err
		}

		rc, closeRelay, err := a.relayClient(ctx, doc)
		if err != nil {
			return fmt.Errorf("connect relay: %w", err)
		}
		defer closeRelay()

		out := cmd.OutOrStdout()
		ctrl := consent.NewController()
		o := reconcile.New(ctrl)
		o.OnPrompt = func(adapter, cta string) {
			_, _ = fmt.Fprintf(out, "Prompt (%s): %s\n", adapter, cta)
			switch {
			case yes:
				ctrl.Answer(true)
			case no:
				ctrl.Answer(false)
			default:
				_, _ = fmt.Fprint(out, "Switch now? [y/N]: ")
				ctrl.Answer(readYes(cmd.InOrStdin()))
			}
		}

		outcome, runErr := o.Run(ctx, a.env(doc, rc))
		_, _ = fmt.Fprintf(out, "Outcome: %s\n", outcome)
		for _, n := range nav.History() {
			_, _ = fmt.Fprintf(out, "Navigation: %s %s\n", n.Kind, n.URL)
		}
		if a.memory != nil {
			for _, e := range a.memory.Events() {
				_, _ = fmt.Fprintf(out, "Event: %s %v\n", e.Name, e.Data)
			}
			for _, e := range a.memory.Errors() {
				_, _ = fmt.Fprintf(out, "Error report: %s: %v\n", e.Desc, e.Err)
			}
		}
		return runErr
	},
}

// loadPage parses htmlFile as url when given, otherwise fetches url.
func loadPage(ctx context.Context, a *app, url, htmlFile string, nav page.Navigator) (*page.Document, error) {
	jar := a.cookies
	opts := []page.Option{page.WithJar(jar), page.WithNavigator(nav)}

	if htmlFile != "" {
		f, err := os.Open(htmlFile)
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		defer func() { _ = f.Close() }()
		return page.Parse(f, url, opts...)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.httpClient(jar).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch page: %s", resp.Status)
	}
	return page.Parse(resp.Body, resp.Request.URL.String(), opts...)
}

func readYes(r io.Reader) bool {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("yes", false, "accept the suggested change")
	runCmd.Flags().Bool("no", false, "decline the suggested change")
	runCmd.Flags().String("html", "", "read the page from a file instead of fetching it")
}

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lahidna/internal/langdetect"
)

var detectCmd = &cobra.Command{
	Use:   "detect [text...]",
	Short: "Detect the language of text",
	Long: `Classify text as Ukrainian, Russian or another language. Without
arguments the text is read from stdin.

Examples:
  lahidna detect "Привіт, як справи?"
  echo "Привет, как дела?" | lahidna detect`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("no text given")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), langdetect.Default().Detect(text))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

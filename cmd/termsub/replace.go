package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/textnorm"
	"github.com/MrWong99/termsub/internal/transcript"
)

func newReplaceCmd(c *cli) *cobra.Command {
	var (
		partial bool
		asJSON  bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "replace [TEXT|-]",
		Short: "Apply the terms to a text",
		Long: `Apply the terms to a text given as arguments or, with "-" or no arguments,
read from standard input. The text is normalized before and after the
substitution, the way transcripts are.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			store, err := c.openStore()
			if err != nil {
				return err
			}
			p := c.pipeline(store)
			out, changes := p.Apply(cmd.Context(), textnorm.Normalize(text), partial)
			out = textnorm.Normalize(out)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Text    string             `json:"text"`
					Changes []terms.Change     `json:"changes"`
					Summary transcript.Summary `json:"summary"`
				}{out, changes, transcript.Summarize(changes, limit)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&partial, "partial", false, "treat the text as a partial transcript")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the text with its changes as JSON")
	cmd.Flags().IntVar(&limit, "summary-limit", transcript.DefaultSummaryLimit, "number of changes listed in the JSON summary")
	return cmd
}

// polish.go implements "tide polish".
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tide-dev/tide/internal/polish"
)

func newPolishCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "polish <text...>",
		Short: "Rewrite text through the configured LLM",
		Long: `Rewrite text with the OpenAI-compatible endpoint configured under polish.*
and print the result. This is the same rewrite the chat view offers on Ctrl+P.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			client, err := polish.New(rt.cfg.Polish)
			if err != nil {
				return err
			}

			ctx, cancel := callContext(cmd, rt)
			defer cancel()
			out, err := client.Polish(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

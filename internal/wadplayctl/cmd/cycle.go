package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCycleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Control ad cycles",
	}
	cmd.AddCommand(newCycleStartCmd(opts))
	return cmd
}

func newCycleStartCmd(opts *rootOptions) *cobra.Command {
	var (
		screenID string
		param    string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an ad cycle",
		Example: `  # Start a cycle using the identity published by the host
  wadplayctl cycle start

  # Override the screen identity as a launch parameter would
  wadplayctl cycle start --screen-id lobby-3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			started, err := c.StartCycle(cmd.Context(), param, screenID)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), started)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %s started\n", started.CycleID)
			return nil
		},
	}

	cmd.Flags().StringVar(&screenID, "screen-id", "", "screen identity override")
	cmd.Flags().StringVar(&param, "param", "screen_id", "launch parameter name configured on wadplayd")
	return cmd
}

func newCyclesCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List recent cycles from the playout journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			items, err := c.ListCycles(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), items)
			}

			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "CYCLE\tSCREEN\tSTATUS\tRESULT\tDEAL\tCOMPLETION\tCONFIRMED\tFINISHED")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d%%\t%v\t%s\n",
					shortID(item.CycleID.String()),
					dash(item.ScreenID),
					item.Status,
					item.Result,
					dash(item.DealID),
					item.CompletionRate,
					item.Confirmed,
					item.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of cycles to list")
	return cmd
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

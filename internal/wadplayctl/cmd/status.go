package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrale/wrale-adplay/internal/wadplayd/lifecycle"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the readiness status of the current cycle",
		Long: `Print the status the host polls: wait, ready, skip or skip:<reason>.

With --wait the command polls until the status leaves wait.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}

			deadline := time.Now().Add(timeout)
			for {
				raw, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				status, err := lifecycle.ParseStatus(raw)
				if err != nil {
					return fmt.Errorf("server returned an invalid status: %w", err)
				}
				if !wait || status.Kind != lifecycle.KindWait || time.Now().After(deadline) {
					fmt.Fprintln(cmd.OutOrStdout(), status)
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(250 * time.Millisecond):
				}
			}
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the status leaves wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up waiting after this long")
	return cmd
}

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Send the display trigger",
		Long: `Tell the runtime the ad is now visible. A trigger sent while a cycle is
still preparing is held until it is ready; sending it more than once is
harmless. With no cycle running the trigger is ignored, except before the
runtime's first cycle, which picks it up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Trigger(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "trigger sent")
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
)

func newIdentityCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect or publish host identity properties",
	}
	cmd.AddCommand(newIdentityGetCmd(opts), newIdentitySetCmd(opts))
	return cmd
}

func newIdentityGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the identity properties published by the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			props, err := c.GetIdentity(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), props)
		},
	}
}

func newIdentitySetCmd(opts *rootOptions) *cobra.Command {
	var (
		slotID, groupID, hardwareID, resolution string
		metadata                                []string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Publish identity properties as the host would",
		Long: `Replace the identity property bag on wadplayd. Properties not given
are cleared.`,
		Example: `  wadplayctl identity set --group-id lobby --hardware-id 00:1a:2b:3c
  wadplayctl identity set --slot-id slot-4 --metadata venue=airport`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			props := v1alpha1.IdentityProperties{}
			flags := cmd.Flags()
			if flags.Changed("slot-id") {
				props.SlotID = &slotID
			}
			if flags.Changed("group-id") {
				props.GroupID = &groupID
			}
			if flags.Changed("hardware-id") {
				props.HardwareID = &hardwareID
			}
			if flags.Changed("resolution") {
				props.Resolution = &resolution
			}
			for _, kv := range metadata {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("metadata must be key=value, got %q", kv)
				}
				if props.Metadata == nil {
					props.Metadata = make(map[string]string)
				}
				props.Metadata[k] = v
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.SetIdentity(cmd.Context(), props); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "identity properties updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&slotID, "slot-id", "", "per-slot identifier")
	cmd.Flags().StringVar(&groupID, "group-id", "", "group or display identifier")
	cmd.Flags().StringVar(&hardwareID, "hardware-id", "", "player hardware identifier")
	cmd.Flags().StringVar(&resolution, "resolution", "", "display resolution, e.g. 1920x1080")
	cmd.Flags().StringSliceVar(&metadata, "metadata", nil, "extra key=value properties")
	return cmd
}

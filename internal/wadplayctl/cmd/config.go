package cmd

import (
	"fmt"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/cobra"

	"github.com/wrale/wrale-adplay/internal/wadplayctl/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long: `Manage the wadplayd endpoints wadplayctl knows about. Each context names
one runtime, for example a screen on the bench or one in the field.`,
	}

	cmd.AddCommand(
		newConfigGetContextCmd(opts),
		newConfigSetContextCmd(opts),
		newConfigDeleteContextCmd(opts),
		newConfigUseContextCmd(opts),
	)
	return cmd
}

func newConfigGetContextCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-context [name]",
		Short: "Display one or many contexts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if len(args) == 1 {
				ctx, ok := cfg.Contexts[args[0]]
				if !ok {
					return fmt.Errorf("context %q not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Name: %s\nServer: %s\nInsecure Skip Verify: %v\n",
					ctx.Name, ctx.Server, ctx.InsecureSkipVerify)
				return nil
			}

			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "CURRENT\tNAME\tSERVER")
			for name, ctx := range cfg.Contexts {
				current := ""
				if name == cfg.CurrentContext {
					current = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, ctx.Server)
			}
			return w.Flush()
		},
	}
}

func newConfigSetContextCmd(opts *rootOptions) *cobra.Command {
	var (
		server          string
		insecureSkipTLS bool
	)

	cmd := &cobra.Command{
		Use:   "set-context NAME",
		Short: "Create or update a context",
		Example: `  wadplayctl config set-context bench --server=http://127.0.0.1:8085
  wadplayctl config set-context lobby --server=https://lobby-player.local:8443 --insecure-skip-tls`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !govalidator.IsRequestURL(server) {
				return fmt.Errorf("invalid server URL %q", server)
			}

			name := args[0]
			opts.cfg.AddContext(name, &config.Context{
				Server:             server,
				InsecureSkipVerify: insecureSkipTLS,
			})
			if err := opts.cfg.Save(); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Context %q updated\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "wadplayd URL (required)")
	cmd.Flags().BoolVar(&insecureSkipTLS, "insecure-skip-tls", false, "skip TLS certificate verification")
	cmd.MarkFlagRequired("server")
	return cmd
}

func newConfigDeleteContextCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.RemoveContext(args[0]); err != nil {
				return err
			}
			if err := opts.cfg.Save(); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted\n", args[0])
			return nil
		},
	}
}

func newConfigUseContextCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use-context NAME",
		Short: "Switch to a different context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.SetCurrentContext(args[0]); err != nil {
				return err
			}
			if err := opts.cfg.Save(); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", args[0])
			return nil
		},
	}
}

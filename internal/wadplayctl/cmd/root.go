// Package cmd implements the wadplayctl commands
package cmd

import (
	"crypto/tls"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrale/wrale-adplay/internal/wadplayctl/client"
	"github.com/wrale/wrale-adplay/internal/wadplayctl/config"
)

// EnvServer overrides the server of the current context
const EnvServer = "WADPLAYCTL_SERVER"

type rootOptions struct {
	cfgFile string
	server  string
	output  string
	debug   bool

	cfg *config.Config
}

// NewRootCmd builds the wadplayctl command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wadplayctl",
		Short: "wadplay runtime control tool",
		Long: `wadplayctl talks to a running wadplayd: it shows the readiness status,
starts cycles, sends the display trigger and lists the playout journal.
It can also decode an ad descriptor offline.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.wadplayctl/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "wadplayd address, overrides the current context")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table, json)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "print extra detail")

	cmd.AddCommand(
		newStatusCmd(opts),
		newTriggerCmd(opts),
		newCycleCmd(opts),
		newCyclesCmd(opts),
		newIdentityCmd(opts),
		newDecodeCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// client builds an API client from the flag, the environment or the current context
func (o *rootOptions) client() (*client.Client, error) {
	server := o.server
	if server == "" {
		server = os.Getenv(EnvServer)
	}

	var options []client.ClientOption
	if server == "" {
		ctx, err := o.cfg.GetCurrentContext()
		if err != nil {
			return nil, fmt.Errorf("no server configured: use --server, %s or 'wadplayctl config set-context': %w", EnvServer, err)
		}
		server = ctx.Server
		if ctx.InsecureSkipVerify {
			options = append(options, client.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
		}
	}

	c, err := client.NewClient(server, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return c, nil
}

package cmd

import (
	"github.com/qri-io/ioes"
	"github.com/spf13/cobra"

	"github.com/qri-io/libp2p/config"
)

// NewIDCommand creates the `libp2p id` command, which prints this node's
// peer ID and listen addresses without starting a long-running process.
func NewIDCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &IDOptions{RootOptions: o, IOStreams: ioStreams}
	cmd := &cobra.Command{
		Use:   "id",
		Short: "show this node's peer ID and configured addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(cmd, args); err != nil {
				return err
			}
			return opts.Run()
		},
	}
	return cmd
}

// IDOptions encapsulates state for the id command.
type IDOptions struct {
	*RootOptions
	ioes.IOStreams

	cfg *config.Config
}

// Complete loads the config whose identity should be printed.
func (o *IDOptions) Complete(cmd *cobra.Command, args []string) (err error) {
	o.cfg, err = o.LoadConfig()
	return err
}

// Run prints the peer ID derived from the config's private key, along
// with every address the node would listen on.
func (o *IDOptions) Run() error {
	id, err := keyIDFromConfig(o.cfg)
	if err != nil {
		return err
	}
	printInfo(o.Out, "%s", id.Pretty())
	for _, addr := range o.cfg.P2P.ListenAddrs {
		printInfo(o.Out, "  %s", addr)
	}
	return nil
}

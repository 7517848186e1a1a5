package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/qri-io/ioes"
	"github.com/spf13/cobra"

	"github.com/qri-io/libp2p/config"
)

var errP2PDisabled = errors.New("cmd: p2p.enabled is false in config")

// NewDaemonCommand creates the `libp2p daemon` command, which starts a
// node and blocks until interrupted.
func NewDaemonCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &DaemonOptions{RootOptions: o, IOStreams: ioStreams}
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "start a libp2p node and keep it running",
		Long: `daemon starts a node, binds every address in the config's p2p.listenaddrs,
and stays running until interrupted (ctrl+c) or killed. While running it
accepts inbound connections, answers identify and ping requests, and logs
its own peer ID and addresses so other nodes can connect to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(cmd, args); err != nil {
				return err
			}
			return opts.Run()
		},
	}
	return cmd
}

// DaemonOptions encapsulates state for the daemon command.
type DaemonOptions struct {
	*RootOptions
	ioes.IOStreams

	cfg *config.Config
}

// Complete loads the config the daemon should run with.
func (o *DaemonOptions) Complete(cmd *cobra.Command, args []string) (err error) {
	o.cfg, err = o.LoadConfig()
	return err
}

// Run starts a node from o.cfg and blocks until the process receives an
// interrupt or the context is cancelled.
func (o *DaemonOptions) Run() error {
	if !o.cfg.P2P.Enabled {
		return errP2PDisabled
	}

	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()

	n, err := newNode(ctx, o.cfg.P2P)
	if err != nil {
		return err
	}
	defer n.Close()

	ai := n.addrInfo()
	printSuccess(o.Out, "peer ID: %s", ai.ID.Pretty())
	for _, addr := range ai.Addrs {
		printInfo(o.Out, "listening on %s/p2p/%s", addr, ai.ID.Pretty())
	}

	bootstrapAddrs := append(append([]string(nil), o.cfg.P2P.BootstrapAddrs...), envBootstrapAddrs()...)
	n.connectBootstrap(ctx, bootstrapAddrs, func(addr string, err error) {
		printWarning(o.Out, "bootstrap: could not connect to %s: %s", addr, err)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		printInfo(o.Out, "shutting down")
	case <-ctx.Done():
	}
	return nil
}

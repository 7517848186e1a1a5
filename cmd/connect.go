package cmd

import (
	"context"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/qri-io/ioes"
	"github.com/spf13/cobra"

	"github.com/qri-io/libp2p/config"
	"github.com/qri-io/libp2p/peer"
)

// connectTimeout bounds how long connect and ping wait for a dial plus
// the identify handshake before giving up.
const connectTimeout = 30 * time.Second

// NewConnectCommand creates the `libp2p connect` command, which dials a
// peer given as a /p2p/ multiaddr and reports whether the connection and
// identify handshake succeeded.
func NewConnectCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &ConnectOptions{RootOptions: o, IOStreams: ioStreams}
	cmd := &cobra.Command{
		Use:   "connect [multiaddr]",
		Short: "connect to a peer at the given multiaddr",
		Long: `connect dials the peer described by a multiaddr of the form
/ip4/1.2.3.4/tcp/4001/p2p/QmPeerID and completes the identify handshake
before reporting success.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(cmd, args); err != nil {
				return err
			}
			return opts.Run()
		},
	}
	return cmd
}

// ConnectOptions encapsulates state for the connect command.
type ConnectOptions struct {
	*RootOptions
	ioes.IOStreams

	cfg  *config.Config
	addr peer.AddrInfo
}

// Complete loads the config and parses the peer address argument.
func (o *ConnectOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return err
	}
	o.cfg = cfg

	m, err := ma.NewMultiaddr(args[0])
	if err != nil {
		return fmt.Errorf("cmd: parsing peer address %q: %w", args[0], err)
	}
	ai, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return fmt.Errorf("cmd: parsing peer address %q: %w", args[0], err)
	}
	o.addr = *ai
	return nil
}

// Run starts a node, dials the target peer, and waits for identify to
// complete before reporting success.
func (o *ConnectOptions) Run() error {
	ctx, cancel := context.WithTimeout(o.ctx, connectTimeout)
	defer cancel()

	n, err := newNode(ctx, o.cfg.P2P)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.host.Connect(ctx, o.addr); err != nil {
		return fmt.Errorf("cmd: connecting to %s: %w", o.addr.ID.Pretty(), err)
	}

	if conns := n.sw.ConnsToPeer(o.addr.ID); len(conns) > 0 {
		select {
		case <-n.identify.IdentifyWait(conns[0]):
		case <-ctx.Done():
		}
	}

	printSuccess(o.Out, "connected to %s", o.addr.ID.Pretty())
	return nil
}

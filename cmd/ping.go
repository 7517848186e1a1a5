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

// NewPingCommand creates the `libp2p ping` command, which connects to a
// peer and round-trips a fixed number of pings.
func NewPingCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &PingOptions{RootOptions: o, IOStreams: ioStreams}
	cmd := &cobra.Command{
		Use:   "ping [multiaddr]",
		Short: "ping a peer at the given multiaddr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(cmd, args); err != nil {
				return err
			}
			return opts.Run()
		},
	}
	cmd.Flags().IntVarP(&opts.Count, "count", "c", 4, "number of pings to send")
	return cmd
}

// PingOptions encapsulates state for the ping command.
type PingOptions struct {
	*RootOptions
	ioes.IOStreams

	cfg   *config.Config
	addr  peer.AddrInfo
	Count int
}

// Complete loads the config and parses the peer address argument.
func (o *PingOptions) Complete(cmd *cobra.Command, args []string) error {
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

// Run dials the target peer and prints the round-trip time of Count pings.
func (o *PingOptions) Run() error {
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

	durations, err := n.ping.PingN(ctx, o.addr.ID, o.Count)
	if err != nil {
		return fmt.Errorf("cmd: pinging %s: %w", o.addr.ID.Pretty(), err)
	}

	var total time.Duration
	for i, d := range durations {
		printInfo(o.Out, "PING %s: seq=%d time=%s", o.addr.ID.Pretty(), i, d)
		total += d
	}
	if len(durations) > 0 {
		printSuccess(o.Out, "average: %s", total/time.Duration(len(durations)))
	}
	return nil
}

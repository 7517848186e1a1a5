package cmd

import (
	"fmt"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/qri-io/ioes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qri-io/libp2p/config"
)

// bootstrapEnvKey is the viper key bound to LIBP2P_BOOTSTRAP: a
// comma-separated list of multiaddrs merged in alongside the config's
// own p2p.bootstrapaddrs at list time, without being persisted to disk.
const bootstrapEnvKey = "bootstrap"

func init() {
	viper.BindEnv(bootstrapEnvKey, "LIBP2P_BOOTSTRAP")
}

// envBootstrapAddrs returns the bootstrap peers supplied via LIBP2P_BOOTSTRAP,
// a comma-separated list of multiaddrs, or nil if it's unset.
func envBootstrapAddrs() []string {
	list := viper.GetString(bootstrapEnvKey)
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}

// NewBootstrapCommand creates the `libp2p bootstrap` command group, which
// shows or edits the list of peers a daemon dials at startup.
func NewBootstrapCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bootstrap",
		Aliases: []string{"bs"},
		Short:   "show or edit the list of bootstrap peers",
	}
	cmd.AddCommand(
		newBootstrapListCommand(o, ioStreams),
		newBootstrapAddCommand(o, ioStreams),
		newBootstrapRemoveCommand(o, ioStreams),
	)
	return cmd
}

// BootstrapOptions encapsulates state shared by the bootstrap subcommands.
type BootstrapOptions struct {
	*RootOptions
	ioes.IOStreams

	cfg *config.Config
}

func (o *BootstrapOptions) complete() (err error) {
	o.cfg, err = o.LoadConfig()
	return err
}

func newBootstrapListCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &BootstrapOptions{RootOptions: o, IOStreams: ioStreams}
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "list configured bootstrap peers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.complete(); err != nil {
				return err
			}
			for _, addr := range opts.cfg.P2P.BootstrapAddrs {
				printInfo(opts.Out, "%s", addr)
			}
			// LIBP2P_BOOTSTRAP supplies additional peers for this run only,
			// the way the env var qriPath/ipfsFsPath lookups in the
			// original CLI layered a runtime override on top of the
			// persisted config without ever writing it back.
			for _, addr := range envBootstrapAddrs() {
				printInfo(opts.Out, "%s (from LIBP2P_BOOTSTRAP)", addr)
			}
			return nil
		},
	}
}

func newBootstrapAddCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &BootstrapOptions{RootOptions: o, IOStreams: ioStreams}
	return &cobra.Command{
		Use:   "add [multiaddr]...",
		Short: "add peers to the bootstrap list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.complete(); err != nil {
				return err
			}
			for _, a := range args {
				if _, err := ma.NewMultiaddr(a); err != nil {
					return fmt.Errorf("cmd: invalid bootstrap address %q: %w", a, err)
				}
			}
			opts.cfg.P2P.BootstrapAddrs = append(opts.cfg.P2P.BootstrapAddrs, args...)
			if err := opts.cfg.WriteToFile(opts.cfg.Path()); err != nil {
				return fmt.Errorf("cmd: writing config: %w", err)
			}
			printSuccess(opts.Out, "added %d bootstrap peer(s)", len(args))
			return nil
		},
	}
}

func newBootstrapRemoveCommand(o *RootOptions, ioStreams ioes.IOStreams) *cobra.Command {
	opts := &BootstrapOptions{RootOptions: o, IOStreams: ioStreams}
	return &cobra.Command{
		Use:     "remove [multiaddr]...",
		Aliases: []string{"rm"},
		Short:   "remove peers from the bootstrap list",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.complete(); err != nil {
				return err
			}
			remove := make(map[string]bool, len(args))
			for _, a := range args {
				remove[a] = true
			}
			kept := opts.cfg.P2P.BootstrapAddrs[:0]
			for _, addr := range opts.cfg.P2P.BootstrapAddrs {
				if !remove[addr] {
					kept = append(kept, addr)
				}
			}
			opts.cfg.P2P.BootstrapAddrs = kept
			if err := opts.cfg.WriteToFile(opts.cfg.Path()); err != nil {
				return fmt.Errorf("cmd: writing config: %w", err)
			}
			printSuccess(opts.Out, "removed %d bootstrap peer(s)", len(args))
			return nil
		},
	}
}

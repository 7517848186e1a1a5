package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qri-io/ioes"
	"github.com/spf13/cobra"

	"github.com/qri-io/libp2p/auth/key"
	"github.com/qri-io/libp2p/config"
)

// RootOptions holds the state every subcommand shares: the io streams
// flags write to, the context their work runs under, the path a config
// lives at (or will be written to), and the generator used to mint a
// fresh identity the first time a command needs one.
type RootOptions struct {
	ioes.IOStreams
	ctx       context.Context
	repoPath  string
	generator key.CryptoGenerator

	NoColor bool
	cfg     *config.Config
}

// NewRootCommand builds the libp2p root cobra command and attaches every
// subcommand to it.
func NewRootCommand(ctx context.Context, pathFactory PathFactory, generator key.CryptoGenerator, ioStreams ioes.IOStreams) *cobra.Command {
	o := &RootOptions{
		IOStreams: ioStreams,
		ctx:       ctx,
		repoPath:  pathFactory(),
		generator: generator,
	}

	cmd := &cobra.Command{
		Use:   "libp2p",
		Short: "a minimal libp2p node: connect, identify, and ping peers",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			SetNoColor(o.NoColor)
		},
	}
	cmd.PersistentFlags().BoolVar(&o.NoColor, "no-color", !stdoutIsTerminal(), "disable colorized output")
	cmd.PersistentFlags().StringVar(&o.repoPath, "repo", o.repoPath, "path to the directory holding config.yaml and keystore.json")

	cmd.AddCommand(
		NewDaemonCommand(o, ioStreams),
		NewIDCommand(o, ioStreams),
		NewConnectCommand(o, ioStreams),
		NewPingCommand(o, ioStreams),
		NewBootstrapCommand(o, ioStreams),
	)

	return cmd
}

// configPath is the file config.Config is persisted to under repoPath.
func (o *RootOptions) configPath() string {
	return filepath.Join(o.repoPath, "config.yaml")
}

// LoadConfig reads the config at configPath, generating and writing a
// fresh one (with a new identity) if none exists yet. Subsequent calls
// within the same process return the cached value.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}

	path := o.configPath()
	cfg, err := config.ReadFromFile(path)
	if os.IsNotExist(err) {
		cfg, err = o.setupConfig(path)
	}
	if err != nil {
		return nil, fmt.Errorf("cmd: loading config: %w", err)
	}
	cfg.SetPath(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cmd: invalid config at %s: %w", path, err)
	}
	o.cfg = cfg
	return cfg, nil
}

// setupConfig builds a fresh default config, mints an identity via the
// configured generator, writes a keystore, and persists it to path.
func (o *RootOptions) setupConfig(path string) (*config.Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	cfg.SetPath(path)
	privKey, peerID := o.generator.GeneratePrivateKeyAndPeerID()
	cfg.P2P.PrivKey = privKey
	cfg.P2P.PeerID = peerID

	if err := cfg.WriteToFile(path); err != nil {
		return nil, fmt.Errorf("cmd: writing new config: %w", err)
	}

	ks, err := key.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	sk, err := cfg.P2P.DecodePrivateKey()
	if err != nil {
		return nil, err
	}
	id, err := keyIDFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := ks.AddPrivKey(id, sk); err != nil {
		return nil, err
	}

	printSuccess(o.Out, "generated a new identity: %s", peerID)
	return cfg, nil
}

func keyIDFromConfig(cfg *config.Config) (key.ID, error) {
	sk, err := cfg.P2P.DecodePrivateKey()
	if err != nil {
		return "", err
	}
	return key.IDFromPrivKey(sk)
}

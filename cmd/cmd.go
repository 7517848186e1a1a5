// Package cmd defines the libp2p command line interface. It relies heavily
// on the spf13/cobra package, following the same command/options/factory
// shape as qri's own CLI: a thin cobra.Command wires flags into an
// *Options struct, whose Complete method fills in anything that needs a
// loaded config or running node before Run does the actual work.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	golog "github.com/ipfs/go-log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/qri-io/ioes"
	"github.com/spf13/cobra"

	"github.com/qri-io/libp2p/auth/key"
)

var log = golog.Logger("cmd")

// Execute adds every subcommand to the root command and runs it. It's
// called once by main.main.
func Execute() {
	if os.Getenv("LIBP2P_BACKTRACE") == "" {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					fmt.Println(err.Error())
				} else {
					fmt.Println(r)
				}
				os.Exit(1)
			}
		}()
	}

	ensureLargeNumOpenFiles()

	ctx := context.Background()
	root := NewRootCommand(ctx, EnvPathFactory, key.NewCryptoSource(), ioes.NewStdIOStreams())
	root.SilenceUsage = true
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		printErr(os.Stderr, err)
		os.Exit(1)
	}
}

// ErrExit writes an error to w and exits 1.
func ErrExit(w io.Writer, err error) {
	log.Debug(err.Error())
	printErr(w, err)
	os.Exit(1)
}

// ExitIfErr only calls ErrExit if err is non-nil.
func ExitIfErr(w io.Writer, err error) {
	if err != nil {
		ErrExit(w, err)
	}
}

// PathFactory returns the default config path, reading environment
// variables and falling back to $HOME/.libp2p.
type PathFactory func() string

// EnvPathFactory returns the libp2p config path based on the
// LIBP2P_PATH environment variable, falling back to $HOME/.libp2p.
func EnvPathFactory() string {
	home, err := homedir.Dir()
	if err != nil {
		panic(err)
	}

	path := os.Getenv("LIBP2P_PATH")
	if path == "" {
		path = filepath.Join(home, ".libp2p")
	}
	return path
}

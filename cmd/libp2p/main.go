// Command libp2p runs the node's command line interface.
package main

import (
	"github.com/qri-io/libp2p/cmd"
)

func main() {
	cmd.Execute()
}

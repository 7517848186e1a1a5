// +build !windows

package cmd

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/crypto/ssh/terminal"
	"golang.org/x/sys/unix"
)

// preferredNumOpenFiles is the preferred number of open files the process
// can have, matching the ulimit -n value recommended for most p2p and
// database-backed services.
const preferredNumOpenFiles = 10000

// ensureLargeNumOpenFiles raises the process's open file limit so a node
// accepting many inbound streams doesn't trip "too many open files".
func ensureLargeNumOpenFiles() {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		panic(err)
	}
	if rLimit.Cur >= preferredNumOpenFiles {
		return
	}

	rLimit.Cur = preferredNumOpenFiles
	rLimit.Max = preferredNumOpenFiles

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			return
		}
		fmt.Printf("error setting max open files limit: %s\n", err)
	}
}

// stdoutIsTerminal reports whether stdout is attached to a terminal, as
// opposed to a pipe or redirected file.
func stdoutIsTerminal() bool {
	return terminal.IsTerminal(syscall.Stdout)
}

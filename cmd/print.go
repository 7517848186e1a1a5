package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var noColor bool

// SetNoColor disables color output for every print helper below, set from
// the root command's --no-color flag.
func SetNoColor(disable bool) {
	noColor = disable
	color.NoColor = disable
}

func printSuccess(w io.Writer, msg string, params ...interface{}) {
	c := color.New(color.FgGreen)
	c.Fprintf(w, msg, params...)
	fmt.Fprintln(w)
}

func printInfo(w io.Writer, msg string, params ...interface{}) {
	fmt.Fprintf(w, msg, params...)
	fmt.Fprintln(w)
}

func printWarning(w io.Writer, msg string, params ...interface{}) {
	c := color.New(color.FgYellow)
	c.Fprintf(w, msg, params...)
	fmt.Fprintln(w)
}

func printErr(w io.Writer, err error) {
	c := color.New(color.FgRed)
	c.Fprintf(w, "%s\n", err.Error())
}

// Package banner prints the startup banner.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const logo = `
======================================================================
            _ _ _          _     _
   ___ __ _| | | |__  _ __(_) __| | __ _  ___
  / __/ _` + "`" + ` | | | '_ \| '__| |/ _` + "`" + ` |/ _` + "`" + ` |/ _ \
 | (_| (_| | | | |_) | |  | | (_| | (_| |  __/
  \___\__,_|_|_|_.__/|_|  |_|\__,_|\__, |\___|
                                   |___/
----------------------------------------------------------------------`

const footer = `======================================================================`

// ConfigLine represents a single configuration line to display
type ConfigLine struct {
	Label string
	Value string
}

// Line builds a ConfigLine, formatting value with %v.
func Line(label string, value any) ConfigLine {
	return ConfigLine{Label: label, Value: fmt.Sprint(value)}
}

// Print writes the banner to stdout.
func Print(serviceName string, config []ConfigLine) {
	Fprint(os.Stdout, serviceName, config)
}

// Fprint writes the logo, the service name and the aligned configuration.
func Fprint(w io.Writer, serviceName string, config []ConfigLine) {
	fmt.Fprintln(w, logo)
	fmt.Fprintln(w, serviceName)

	maxLen := 0
	for _, c := range config {
		maxLen = max(maxLen, len(c.Label))
	}
	for _, c := range config {
		value := c.Value
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, "  %s%s : %s\n", c.Label, strings.Repeat(" ", maxLen-len(c.Label)), value)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ready.")
	fmt.Fprintln(w, footer)
	fmt.Fprintln(w)
}

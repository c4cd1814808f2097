// Command tonearm serves the media library API and embeds album artwork
// from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, colorError.Sprint("error: ")+err.Error())
		}
		os.Exit(1)
	}
}

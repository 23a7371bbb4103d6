// Command designgen runs the design-assistant tooling: an HTTP proxy that
// keeps provider keys server-side, and a one-shot generation command.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

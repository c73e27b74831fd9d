// Command rtctl publishes to and subscribes on realtime channels.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rtctl: %s\n", err)
		os.Exit(1)
	}
}

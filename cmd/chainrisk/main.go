// Command chainrisk runs the supply-chain risk engine: a NATS-driven
// recalculation service plus one-shot analysis commands over the graph.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

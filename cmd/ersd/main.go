// Command ersd runs one node of the entity registry.
package main

import (
	"fmt"
	"os"

	"github.com/ers-go/ers/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
}

// Command memorized runs the hybrid memory and knowledge server.
package main

import (
	"fmt"
	"os"

	"memorized/cmd/memorized/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memorized:", err)
		os.Exit(1)
	}
}

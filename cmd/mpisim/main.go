// Command mpisim runs simulated MPI worlds.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/mpisim/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}

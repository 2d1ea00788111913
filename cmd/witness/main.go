// Command witness runs and inspects a KEL witness node.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kelwitness/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}

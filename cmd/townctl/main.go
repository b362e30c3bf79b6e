// townctl runs the agent orchestration daemon and its lifecycle tools.
package main

import (
	"os"

	"github.com/spartypkp/townctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

package main

import (
	"fmt"
	"os"

	"github.com/syntellix/syntellix-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "syntellix:", err)
		os.Exit(1)
	}
}

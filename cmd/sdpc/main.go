package main

import (
	"fmt"
	"os"

	"github.com/sdpc-project/sdpc/cmd"
)

func main() {
	if err := cmd.Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sdpc: %v\n", err)
		os.Exit(1)
	}
}

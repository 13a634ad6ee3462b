package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/DALE-GH/location-tracker/cmd"
)

func main() {
	if err := cmd.RunClient(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, cmd.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

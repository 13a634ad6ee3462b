package main

import (
	"os"

	"github.com/DALE-GH/location-tracker/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"captiond/internal/ctl"
)

func main() {
	if err := ctl.Execute(); err != nil {
		os.Exit(1)
	}
}

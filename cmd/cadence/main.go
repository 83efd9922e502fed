package main

import (
	"fmt"
	"os"

	"cadence/internal/models"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if models.IsFatalConfig(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

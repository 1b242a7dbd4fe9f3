// Command botctl is an operator tool for the booking assistant: it runs the
// entity extractor on ad-hoc text, probes each configured model backend and
// simulates a full conversation on the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

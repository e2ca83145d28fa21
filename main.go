package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/baton/internal/cmd"
	baterr "github.com/Iron-Ham/baton/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := baterr.Remediation(err); hint != "" {
			fmt.Fprintf(os.Stderr, "%s\n", hint)
		}
		os.Exit(baterr.ExitCode(err))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docvellum/vellum/cli"
	"github.com/docvellum/vellum/errs"
)

func main() {
	if err := cli.App.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "vellum:", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(errs.ExitCode(errs.ClassOf(err)))
	}
}

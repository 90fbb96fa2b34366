package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/blackwell-systems/pkgcatalog/internal/app"
	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode returns 2 for a manifest the catalog rejected and 1 for any other
// error.
func exitCode(err error) int {
	switch {
	case errors.Is(err, catalogerr.ErrDependenciesValidationFailed),
		errors.Is(err, catalogerr.ErrMissingPackage),
		errors.Is(err, catalogerr.ErrArpVersionValidationFailed),
		errors.Is(err, catalogerr.ErrAlreadyExists):
		return 2
	default:
		return 1
	}
}

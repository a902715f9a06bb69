package main

import (
	"fmt"

	"jentic/internal/domain"
)

// Process exit codes. Anything without a domain code exits with exitFailure.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitNotFound  = 3
	exitAuth      = 4
	exitTransport = 5
)

type exitError struct {
	code    int
	message string
	silent  bool
}

func (e exitError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.message
}

func exitSilent(code int) error {
	return exitError{code: code, silent: true}
}

// exitForResult ends a failed execute with the code matching its error.
func exitForResult(result domain.ExecutionResult) error {
	if result.Error == nil {
		return exitSilent(exitFailure)
	}
	return exitSilent(exitCodeFor(result.Error.Code))
}

func exitCodeForError(err error) int {
	code, ok := domain.CodeFrom(err)
	if !ok {
		return exitFailure
	}
	return exitCodeFor(code)
}

func exitCodeFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidArgument, domain.CodeUnsupportedFormat, domain.CodeUnknownTool:
		return exitUsage
	case domain.CodeNotFound, domain.CodeNotLoaded:
		return exitNotFound
	case domain.CodeUnauthenticated, domain.CodePermissionDenied:
		return exitAuth
	}
	if domain.IsTransportCode(code) {
		return exitTransport
	}
	return exitFailure
}

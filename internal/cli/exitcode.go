// Package cli maps engine errors to process exit codes and renders
// WorkflowState for the orc command-line tool.
package cli

import (
	"errors"

	"github.com/c360studio/orc/internal/model"
)

// Exit codes, per spec §6's locked table: 0 success, 1 workflow error
// (state.status = ERROR), 2 invalid command for current state, 3
// config/validation failure, 4 session not found. Codes above 4 are
// this binary's own extension: ExitStorageError for storage I/O, kept
// distinct from ExitGenericError so scripts can still tell them apart.
// ExitInternalError is declared but ExitCodeFor never returns it: an
// UnexpectedInternalError maps to ExitWorkflowError.
const (
	ExitOK                 = 0
	ExitWorkflowError      = 1
	ExitInvalidCommand     = 2
	ExitConfigurationError = 3
	ExitSessionNotFound    = 4
	ExitGenericError       = 5
	ExitStorageError       = 6
	ExitInternalError      = 7
)

// ExitCodeFor classifies err into one of the codes above by its
// concrete model error type. Provider errors have no code of their own:
// failures of AI and approval provider calls are recorded on
// WorkflowState.LastError and are not returned, while the ProviderErrors
// that are returned (a failing standards bundle at init, or a profile
// failing to create a prompt) fall through to ExitGenericError.
// ConfigurationError also covers
// ContextValidationError: both are init-time validation failures
// before a session exists, and share exit code 3 in the spec's table.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var notFound *model.SessionNotFoundError
	if errors.As(err, &notFound) {
		return ExitSessionNotFound
	}

	var invalidCmd *model.InvalidCommandError
	if errors.As(err, &invalidCmd) {
		return ExitInvalidCommand
	}

	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitConfigurationError
	}

	var ctxErr *model.ContextValidationError
	if errors.As(err, &ctxErr) {
		return ExitConfigurationError
	}

	var internalErr *model.UnexpectedInternalError
	if errors.As(err, &internalErr) {
		return ExitWorkflowError
	}

	var storageErr *model.StorageError
	if errors.As(err, &storageErr) {
		return ExitStorageError
	}

	return ExitGenericError
}

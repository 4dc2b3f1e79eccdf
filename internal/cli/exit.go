package cli

import (
	"errors"

	"github.com/me/choppy/internal/config"
	"github.com/me/choppy/internal/jsondoc"
	"github.com/me/choppy/internal/schema"
	"github.com/me/choppy/pkg/model"
)

// ErrValidationFailed is returned when an inputs document or a samples
// header has findings.
var ErrValidationFailed = errors.New("validation failed")

// Process exit codes.
const (
	ExitOK                   = 0
	ExitGeneral              = 1
	ExitConfigNotFound       = 2
	ExitStorageNotConfigured = 3
	ExitInvalidJSON          = 4
	ExitExtractor            = 5
	ExitValidation           = 6
	ExitServerNotConfigured  = 8
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var se *jsondoc.SyntaxError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrNotFound):
		return ExitConfigNotFound
	case errors.Is(err, model.ErrStorageNotConfigured):
		return ExitStorageNotConfigured
	case errors.As(err, &se):
		return ExitInvalidJSON
	case errors.Is(err, schema.ErrExtractor):
		return ExitExtractor
	case errors.Is(err, ErrValidationFailed):
		return ExitValidation
	case errors.Is(err, model.ErrServerNotConfigured):
		return ExitServerNotConfigured
	default:
		return ExitGeneral
	}
}

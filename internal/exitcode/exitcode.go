package exitcode

import "github.com/gyeh/brillestotte/internal/apperr"

const (
	Success            = 0
	UsageError         = 1
	ValidationError    = 2
	DBConnError        = 3
	DuplicateDecision  = 4
	CollaboratorFailed = 5
	InconsistentState  = 6
	NotFound           = 7
	Failure            = 8
)

// ForError maps an application error to the process exit code.
func ForError(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return ValidationError
	case apperr.KindDuplicateDecision:
		return DuplicateDecision
	case apperr.KindCollaboratorUnavailable:
		return CollaboratorFailed
	case apperr.KindInconsistentState:
		return InconsistentState
	case apperr.KindNotFound:
		return NotFound
	default:
		return Failure
	}
}

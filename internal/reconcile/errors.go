package reconcile

import "errors"

// Failure taxonomy of the engine. Snapshot failures are reported with ErrIO,
// ErrNetwork or ErrAuth and end up as an Unknown classification; executor
// failures carry ErrVCS together with the underlying vcs sentinel.
var (
	ErrIO      = errors.New("local filesystem error")
	ErrNetwork = errors.New("network error")
	ErrAuth    = errors.New("authentication error")
	ErrVCS     = errors.New("version control error")

	ErrUnsettled     = errors.New("local tree kept changing while scanning")
	ErrNotApplicable = errors.New("action cannot be applied")
	ErrStillDiverged = errors.New("local and remote heads still differ")
	ErrRollback      = errors.New("rollback failed")
)

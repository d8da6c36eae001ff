package groupchat

import "errors"

// Sentinel errors surfaced by the manager's configuration validation and
// speaker-selection precedence chain (spec.md §4.1, §7 "Configuration" and
// "Validation" error kinds).
var (
	// ErrNoParticipants means a manager was configured with zero agents.
	ErrNoParticipants = errors.New("groupchat: no participants configured")

	// ErrDuplicateParticipant means two containers registered the same name.
	ErrDuplicateParticipant = errors.New("groupchat: duplicate participant name")

	// ErrUnknownParticipant is returned when a name outside the configured
	// participant set is used as a selection or dispatch target.
	ErrUnknownParticipant = errors.New("groupchat: unknown participant")

	// ErrEmptyCandidates means a candidate function returned no names.
	ErrEmptyCandidates = errors.New("groupchat: candidate function returned no participants")

	// ErrNotStarted means an operation that requires a running thread was
	// called before Start.
	ErrNotStarted = errors.New("groupchat: manager has not been started")

	// ErrAlreadyStarted means Start was called twice on the same manager.
	ErrAlreadyStarted = errors.New("groupchat: manager already started")

	// ErrInvalidTrimCount means a trim count exceeded the available
	// message-nodes on the active path (spec.md §8 boundary behaviour).
	ErrInvalidTrimCount = errors.New("groupchat: trim count exceeds available message nodes")
)

// Package plugin defines the hook set the group-chat manager calls into at
// fixed points in its lifecycle, and the state-view contract agents and the
// speaker selector read from.
package plugin

import (
	"context"

	"github.com/haasonsaas/groupchat/internal/events"
)

// StateView is the set of template variables a plugin contributes before an
// agent or the selector renders its prompt.
type StateView map[string]string

// Plugin is the hook set every group-chat plugin implements. The manager
// composes plugins in registration order; on_message_added side effects are
// serialized per thread append because the manager only ever calls these
// hooks from the single goroutine that owns the thread.
type Plugin interface {
	Name() string

	// OnMessageAdded runs after ev is appended to thread. Plugins may
	// mutate their own internal state and optionally write a snapshot.
	OnMessageAdded(ctx context.Context, ev events.Event, thread events.Thread) error

	// OnBeforeSpeakerSelection lets a plugin force the next speaker. The
	// first plugin (in registration order) to return a non-empty name
	// wins; an empty string means "no opinion".
	OnBeforeSpeakerSelection(ctx context.Context, thread events.Thread, candidates, participants []string) (forcedSpeaker string, err error)

	// OnUserMessage runs inside SendUserDirected. directed reports whether
	// the message was addressed to a specific target (vs. broadcast).
	OnUserMessage(ctx context.Context, msg events.ChatMessage, directed bool, target string) error

	// OnBranch runs after a trim; trimCount is the manager-level logical
	// trim count and newLength is the thread's length after trimming.
	OnBranch(ctx context.Context, trimCount, newLength int) error

	// GetStateForAgent and GetStateForSelector supply template variables
	// before, respectively, an agent's and the selector's prompt render.
	GetStateForAgent(ctx context.Context) (StateView, error)
	GetStateForSelector(ctx context.Context) (StateView, error)

	// SaveState and LoadState round-trip the plugin's internal state
	// across session persistence; data is opaque to the manager.
	SaveState(ctx context.Context) ([]byte, error)
	LoadState(ctx context.Context, data []byte) error
}

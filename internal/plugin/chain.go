package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/groupchat/internal/events"
)

// Chain composes plugins in registration order, the only order the manager
// ever calls them in.
type Chain struct {
	plugins []Plugin
}

// NewChain returns a Chain over plugins, preserving the order given.
func NewChain(plugins ...Plugin) *Chain {
	return &Chain{plugins: plugins}
}

// Plugins returns the chain's plugins in registration order.
func (c *Chain) Plugins() []Plugin { return c.plugins }

// DispatchMessageAdded calls OnMessageAdded on every plugin in order,
// stopping at the first error.
func (c *Chain) DispatchMessageAdded(ctx context.Context, ev events.Event, thread events.Thread) error {
	for _, p := range c.plugins {
		if err := p.OnMessageAdded(ctx, ev, thread); err != nil {
			return fmt.Errorf("plugin %q OnMessageAdded: %w", p.Name(), err)
		}
	}
	return nil
}

// DispatchBeforeSpeakerSelection returns the first non-empty forced speaker
// name a plugin produces, in registration order, or "" if none has an
// opinion.
func (c *Chain) DispatchBeforeSpeakerSelection(ctx context.Context, thread events.Thread, candidates, participants []string) (string, error) {
	for _, p := range c.plugins {
		forced, err := p.OnBeforeSpeakerSelection(ctx, thread, candidates, participants)
		if err != nil {
			return "", fmt.Errorf("plugin %q OnBeforeSpeakerSelection: %w", p.Name(), err)
		}
		if forced != "" {
			return forced, nil
		}
	}
	return "", nil
}

// DispatchUserMessage calls OnUserMessage on every plugin in order.
func (c *Chain) DispatchUserMessage(ctx context.Context, msg events.ChatMessage, directed bool, target string) error {
	for _, p := range c.plugins {
		if err := p.OnUserMessage(ctx, msg, directed, target); err != nil {
			return fmt.Errorf("plugin %q OnUserMessage: %w", p.Name(), err)
		}
	}
	return nil
}

// DispatchBranch calls OnBranch on every plugin in order.
func (c *Chain) DispatchBranch(ctx context.Context, trimCount, newLength int) error {
	for _, p := range c.plugins {
		if err := p.OnBranch(ctx, trimCount, newLength); err != nil {
			return fmt.Errorf("plugin %q OnBranch: %w", p.Name(), err)
		}
	}
	return nil
}

// CollectStateForAgent merges every plugin's agent-facing state view. Later
// plugins in registration order win on key collisions.
func (c *Chain) CollectStateForAgent(ctx context.Context) (StateView, error) {
	return c.collect(ctx, Plugin.GetStateForAgent)
}

// CollectStateForSelector merges every plugin's selector-facing state view.
func (c *Chain) CollectStateForSelector(ctx context.Context) (StateView, error) {
	return c.collect(ctx, Plugin.GetStateForSelector)
}

func (c *Chain) collect(ctx context.Context, get func(Plugin, context.Context) (StateView, error)) (StateView, error) {
	merged := make(StateView)
	for _, p := range c.plugins {
		view, err := get(p, ctx)
		if err != nil {
			return nil, fmt.Errorf("plugin %q state view: %w", p.Name(), err)
		}
		for k, v := range view {
			merged[k] = v
		}
	}
	return merged, nil
}

// stateBlob is the persisted shape of one plugin's state, keyed by plugin
// name so SaveAll/LoadAll survive plugin registration order changing
// between a save and a later load.
type stateBlob struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// SaveAll serializes every plugin's state into one document.
func (c *Chain) SaveAll(ctx context.Context) ([]byte, error) {
	blobs := make([]stateBlob, 0, len(c.plugins))
	for _, p := range c.plugins {
		data, err := p.SaveState(ctx)
		if err != nil {
			return nil, fmt.Errorf("plugin %q SaveState: %w", p.Name(), err)
		}
		blobs = append(blobs, stateBlob{Name: p.Name(), Data: data})
	}
	return json.Marshal(blobs)
}

// LoadAll restores every plugin's state from a document produced by
// SaveAll, matching blobs to plugins by name so an unmatched plugin simply
// keeps its zero state instead of erroring.
func (c *Chain) LoadAll(ctx context.Context, data []byte) error {
	var blobs []stateBlob
	if err := json.Unmarshal(data, &blobs); err != nil {
		return fmt.Errorf("unmarshaling plugin state document: %w", err)
	}
	byName := make(map[string]json.RawMessage, len(blobs))
	for _, b := range blobs {
		byName[b.Name] = b.Data
	}
	for _, p := range c.plugins {
		raw, ok := byName[p.Name()]
		if !ok {
			continue
		}
		if err := p.LoadState(ctx, raw); err != nil {
			return fmt.Errorf("plugin %q LoadState: %w", p.Name(), err)
		}
	}
	return nil
}

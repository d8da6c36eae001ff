package events

import (
	"encoding/json"
	"fmt"
)

// envelope is the on-disk/wire shape of one event: a discriminator plus the
// concrete event's own JSON, so a Thread round-trips through JSON without
// losing which concrete type each entry was (spec.md §6.4: "thread (as
// event dicts)").
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvent encodes ev as a kind-tagged envelope.
func MarshalEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", ev.Kind(), err)
	}
	return json.Marshal(envelope{Kind: ev.Kind(), Data: data})
}

// UnmarshalEvent decodes a kind-tagged envelope back into its concrete
// Event type.
func UnmarshalEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling event envelope: %w", err)
	}
	switch env.Kind {
	case KindChatMessage:
		var ev ChatMessage
		return ev, unmarshalInto(env.Data, &ev)
	case KindStreamingChunk:
		var ev StreamingChunk
		return ev, unmarshalInto(env.Data, &ev)
	case KindToolCallRequest:
		var ev ToolCallRequest
		return ev, unmarshalInto(env.Data, &ev)
	case KindToolCallExecution:
		var ev ToolCallExecution
		return ev, unmarshalInto(env.Data, &ev)
	case KindSelectorEvent:
		var ev SelectorEvent
		return ev, unmarshalInto(env.Data, &ev)
	case KindStopMessage:
		var ev StopMessage
		return ev, unmarshalInto(env.Data, &ev)
	case KindUserInputRequested:
		var ev UserInputRequested
		return ev, unmarshalInto(env.Data, &ev)
	case KindStateUpdate:
		var ev StateUpdate
		return ev, unmarshalInto(env.Data, &ev)
	case KindAnalysisUpdate:
		var ev AnalysisUpdate
		return ev, unmarshalInto(env.Data, &ev)
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
}

func unmarshalInto[T any](data json.RawMessage, out *T) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshaling event payload: %w", err)
	}
	return nil
}

// MarshalJSON encodes the thread as a JSON array of kind-tagged envelopes.
func (t Thread) MarshalJSON() ([]byte, error) {
	envs := make([]envelope, 0, len(t))
	for _, ev := range t {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s event: %w", ev.Kind(), err)
		}
		envs = append(envs, envelope{Kind: ev.Kind(), Data: data})
	}
	return json.Marshal(envs)
}

// UnmarshalJSON decodes a thread previously produced by MarshalJSON.
func (t *Thread) UnmarshalJSON(data []byte) error {
	var envs []envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return fmt.Errorf("unmarshaling thread: %w", err)
	}
	out := make(Thread, 0, len(envs))
	for _, env := range envs {
		raw, err := json.Marshal(env)
		if err != nil {
			return err
		}
		ev, err := UnmarshalEvent(raw)
		if err != nil {
			return err
		}
		out = append(out, ev)
	}
	*t = out
	return nil
}

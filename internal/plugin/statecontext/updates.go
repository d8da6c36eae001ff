package statecontext

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
)

func (p *Plugin) updateStateOfRun(ctx context.Context, msg events.ChatMessage) error {
	if p.interrupted {
		return nil
	}
	handoffInfo := p.handoffContext
	if msg.EventSource() == p.userProxyName {
		handoffInfo = "just received user feedback"
	}

	prompt := fmt.Sprintf(stateOfRunUpdatePrompt, p.stateOfRun, handoffInfo, msg.Content)
	result, err := p.client.Create(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are updating research progress state."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{})
	if err != nil {
		return fmt.Errorf("state_of_run update call: %w", err)
	}
	p.stateOfRun = result.Content
	return nil
}

func (p *Plugin) updateToolCallFacts(ctx context.Context, exec events.ToolCallExecution) error {
	if p.interrupted {
		return nil
	}
	prompt := fmt.Sprintf(toolCallUpdatingPrompt, p.toolCallFacts, renderToolResults(exec))
	result, err := p.client.Create(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are updating the discovered facts whiteboard."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{})
	if err != nil {
		return fmt.Errorf("tool_call_facts update call: %w", err)
	}
	p.toolCallFacts = strings.TrimSpace(p.toolCallFacts + "\n\n" + result.Content)
	return nil
}

func (p *Plugin) updateHandoffContext(ctx context.Context, msg events.ChatMessage) error {
	if p.interrupted {
		return nil
	}
	prompt := fmt.Sprintf(handoffContextUpdatingPrompt, p.stateOfRun, p.handoffContext, msg.Content)
	result, err := p.client.Create(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are updating handoff instructions."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{})
	if err != nil {
		return fmt.Errorf("handoff_context update call: %w", err)
	}
	p.handoffContext = result.Content
	return nil
}

func renderToolResults(exec events.ToolCallExecution) string {
	var b strings.Builder
	for _, r := range exec.Results {
		fmt.Fprintf(&b, "[%s] ok=%v: %s\n", r.Name, r.OK, r.Content)
	}
	return b.String()
}

// handoffIntentRouter is a lightweight classifier run on every human
// message to flag explicit handoff-routing intent. Its result is discarded
// (only a failed call is logged), matching the original's "even if it reports no intent, the
// update still occurs" note: detection never gates the state updates
// themselves.
type handoffIntentRouter struct {
	client llm.Client
}

func newHandoffIntentRouter(client llm.Client) *handoffIntentRouter {
	return &handoffIntentRouter{client: client}
}

// DetectIntent reports whether text expresses explicit handoff-routing
// intent.
func (r *handoffIntentRouter) DetectIntent(ctx context.Context, text string) (bool, error) {
	result, err := r.client.Create(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(handoffIntentPrompt, text)},
	}, llm.Options{})
	if err != nil {
		return false, fmt.Errorf("handoff intent detection call: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(result.Content), "yes"), nil
}

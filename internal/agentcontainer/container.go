// Package agentcontainer implements the per-agent adapter the group-chat
// manager dispatches publish-requests to: an inbox of messages seen since
// the agent last spoke, plugin-injected state, and an LLM (optionally
// tool-using) invocation that produces a final ChatMessage.
package agentcontainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/plugin"
	"github.com/haasonsaas/groupchat/internal/workbench"
)

// DefaultMaxToolIterations bounds the tool-call/execution cycle so a
// misbehaving model or tool can't loop forever inside one publish-request.
const DefaultMaxToolIterations = 5

// Response is what a container returns to the manager after a
// publish-request: the agent's final utterance plus, when tools were
// invoked, the ToolCallRequest/ToolCallExecution pairs generated along the
// way, which the manager appends to the thread ahead of the ChatMessage.
type Response struct {
	ChatMessage   events.ChatMessage
	InnerMessages []events.Event
}

// Config configures one agent's container.
type Config struct {
	// Name identifies the agent as a thread participant.
	Name string
	// Description is the agent's one-line role, used by the selector
	// prompt (spec.md §4.1) and not rendered into this agent's own system
	// prompt.
	Description string
	// SystemPromptTemplate is rendered with state_of_run, tool_call_facts,
	// handoff_context, and participant_names before every invocation.
	SystemPromptTemplate string

	Client llm.Client
	// Tools is optional; a nil Tools means the agent never calls tools.
	Tools workbench.Workbench

	Model             string
	MaxTokens         int
	MaxToolIterations int
}

// Container is the runtime per-agent adapter.
type Container struct {
	name        string
	description string
	promptTmpl  *template.Template
	client      llm.Client
	tools       workbench.Workbench
	model       string
	maxTokens   int
	maxIter     int

	buffer []events.ChatMessage
	newID  func() string
}

// New returns a Container for the agent described by cfg.
func New(cfg Config) (*Container, error) {
	tmpl, err := template.New(cfg.Name).Option("missingkey=zero").Parse(cfg.SystemPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("agent %q: parse system prompt template: %w", cfg.Name, err)
	}
	maxIter := cfg.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}
	return &Container{
		name:        cfg.Name,
		description: cfg.Description,
		promptTmpl:  tmpl,
		client:      cfg.Client,
		tools:       cfg.Tools,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxIter:     maxIter,
		newID:       func() string { return uuid.NewString() },
	}, nil
}

// Name returns the agent's participant name.
func (c *Container) Name() string { return c.name }

// Description returns the agent's one-line role.
func (c *Container) Description() string { return c.description }

// Inbound appends a ChatMessage to the agent's buffer of things seen since
// it last spoke. The manager calls this for every ChatMessage appended to
// the thread other than the ones this agent itself produced.
func (c *Container) Inbound(msg events.ChatMessage) {
	c.buffer = append(c.buffer, msg)
}

// Branch drops the last trimUp entries from the buffer, in response to a
// manager-issued trim translated by internal/trim for this agent.
func (c *Container) Branch(trimUp int) {
	if trimUp <= 0 {
		return
	}
	if trimUp > len(c.buffer) {
		trimUp = len(c.buffer)
	}
	c.buffer = c.buffer[:len(c.buffer)-trimUp]
}

// BufferLen reports how many messages are currently buffered; exposed for
// tests and diagnostics.
func (c *Container) BufferLen() int { return len(c.buffer) }

type promptVars struct {
	StateOfRun       string
	ToolCallFacts    string
	HandoffContext   string
	ParticipantNames string
}

func (c *Container) renderSystemPrompt(state plugin.StateView, participantNames []string) (string, error) {
	vars := promptVars{
		StateOfRun:       state["state_of_run"],
		ToolCallFacts:    state["tool_call_facts"],
		HandoffContext:   state["handoff_context"],
		ParticipantNames: strings.Join(participantNames, ", "),
	}
	var buf bytes.Buffer
	if err := c.promptTmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("agent %q: render system prompt: %w", c.name, err)
	}
	return buf.String(), nil
}

// renderHistory formats the buffer as "<name> : <content>" entries joined
// by blank lines, the same transcript shape the selector prompt uses.
func (c *Container) renderHistory() string {
	lines := make([]string, 0, len(c.buffer))
	for _, m := range c.buffer {
		lines = append(lines, fmt.Sprintf("%s : %s", m.EventSource(), m.Content))
	}
	return strings.Join(lines, "\n\n")
}

// Respond renders the agent's system prompt, invokes the LLM, and - if
// tools are configured - performs the tool-call/tool-execution cycle until
// the model returns a plain text answer or MaxToolIterations is reached.
// It does not mutate the buffer; the manager is responsible for clearing
// it via the next Branch call or by virtue of this agent no longer being
// the target of Inbound once it has spoken.
func (c *Container) Respond(ctx context.Context, state plugin.StateView, participantNames []string) (Response, error) {
	system, err := c.renderSystemPrompt(state, participantNames)
	if err != nil {
		return Response{}, err
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	if history := c.renderHistory(); history != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: history})
	}

	opts := llm.Options{Model: c.model, MaxTokens: c.maxTokens}
	var toolDefs []llm.ToolDef
	if c.tools != nil {
		specs, err := c.tools.ListTools(ctx)
		if err != nil {
			return Response{}, fmt.Errorf("agent %q: list tools: %w", c.name, err)
		}
		for _, s := range specs {
			toolDefs = append(toolDefs, llm.ToolDef{Name: s.Name, Description: s.Description, Schema: s.Schema})
		}
	}
	opts.Tools = toolDefs

	var inner []events.Event
	for iteration := 0; ; iteration++ {
		result, err := c.client.Create(ctx, messages, opts)
		if err != nil {
			return Response{}, fmt.Errorf("agent %q: invoke model: %w", c.name, err)
		}

		if len(result.ToolCalls) == 0 || c.tools == nil {
			return Response{
				ChatMessage:   events.NewChatMessage(c.name, c.newID(), result.Content, time.Now()),
				InnerMessages: inner,
			}, nil
		}

		if iteration >= c.maxIter-1 {
			return Response{
				ChatMessage: events.NewChatMessage(c.name, c.newID(),
					fmt.Sprintf("(stopped after %d tool iterations without a final answer)", c.maxIter), time.Now()),
				InnerMessages: inner,
			}, nil
		}

		request, execution, assistantMsg := c.runToolCalls(ctx, result)
		inner = append(inner, request, execution)
		messages = append(messages, assistantMsg, renderToolResultsMessage(execution))
	}
}

// runToolCalls invokes every tool the model requested and pairs the
// request with its execution, matching spec.md §4.5 step 2 and the
// ToolCallExecution pairing invariant (events.Thread.ValidateToolPairing).
func (c *Container) runToolCalls(ctx context.Context, result llm.Result) (events.ToolCallRequest, events.ToolCallExecution, llm.Message) {
	now := time.Now()
	calls := make([]events.ToolCall, 0, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		calls = append(calls, events.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
	}
	request := events.NewToolCallRequest(c.name, calls, now)

	results := make([]events.ToolResult, 0, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Args), &args); err != nil {
			results = append(results, events.ToolResult{CallID: tc.ID, Name: tc.Name, OK: false, Content: fmt.Sprintf("invalid arguments: %v", err)})
			continue
		}
		res, err := c.tools.Invoke(ctx, tc.Name, args)
		if err != nil {
			results = append(results, events.ToolResult{CallID: tc.ID, Name: tc.Name, OK: false, Content: err.Error()})
			continue
		}
		results = append(results, events.ToolResult{CallID: tc.ID, Name: tc.Name, OK: res.OK, Content: res.Content})
	}
	execution := events.NewToolCallExecution(c.name, results, time.Now())

	assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: describeToolCalls(calls)}
	return request, execution, assistantMsg
}

func describeToolCalls(calls []events.ToolCall) string {
	var b strings.Builder
	b.WriteString("(requested tool calls: ")
	for i, c := range calls {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s(%s)", c.Name, c.Args)
	}
	b.WriteString(")")
	return b.String()
}

func renderToolResultsMessage(execution events.ToolCallExecution) llm.Message {
	var b strings.Builder
	for i, r := range execution.Results {
		if i > 0 {
			b.WriteString("\n")
		}
		status := "ok"
		if !r.OK {
			status = "error"
		}
		fmt.Fprintf(&b, "[%s:%s] %s", r.Name, status, r.Content)
	}
	return llm.Message{Role: llm.RoleUser, Content: b.String()}
}

// Selection implements the speaker-selection precedence chain from
// spec.md §4.1: plugin override, selector function, candidate function,
// then LLM selection with a bounded retry/ambiguity-feedback loop.
package groupchat

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/plugin"
)

// SelectorFunc lets the host override selection outright. Returning ""
// means "no opinion", falling through to the candidate/LLM steps.
type SelectorFunc func(thread events.Thread) (string, error)

// CandidateFunc narrows the eligible participant set before LLM selection.
// Returning an empty slice is a configuration error (spec.md §4.1 "Tie
// breaks").
type CandidateFunc func(thread events.Thread) ([]string, error)

// SelectionConfig configures one selector instance.
type SelectionConfig struct {
	Participants         []string
	ParticipantRoles     map[string]string // name -> one-line role description
	SelectorPromptTemplate string          // rendered with .Roles .Participants .History .StateOfRun .HandoffContext
	AllowRepeatedSpeaker   bool
	MaxSelectorAttempts    int

	SelectorFunc  SelectorFunc
	CandidateFunc CandidateFunc

	Client llm.Client
	Model  string
}

type selector struct {
	cfg             SelectionConfig
	tmpl            *template.Template
	participantSet  map[string]struct{}
	previousSpeaker string
}

func newSelector(cfg SelectionConfig) (*selector, error) {
	if len(cfg.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	set := make(map[string]struct{}, len(cfg.Participants))
	for _, p := range cfg.Participants {
		if _, dup := set[p]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p)
		}
		set[p] = struct{}{}
	}
	if cfg.MaxSelectorAttempts <= 0 {
		cfg.MaxSelectorAttempts = 3
	}
	tmpl, err := template.New("selector").Option("missingkey=zero").Parse(cfg.SelectorPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse selector prompt template: %w", err)
	}
	return &selector{cfg: cfg, tmpl: tmpl, participantSet: set}, nil
}

// Select runs the full precedence chain and returns the chosen speaker.
func (s *selector) Select(ctx context.Context, chain *plugin.Chain, thread events.Thread) (string, error) {
	candidates := s.defaultCandidates()

	forced, err := chain.DispatchBeforeSpeakerSelection(ctx, thread, candidates, s.cfg.Participants)
	if err != nil {
		return "", err
	}
	if forced != "" {
		if _, ok := s.participantSet[forced]; !ok {
			return "", fmt.Errorf("%w: plugin forced %q", ErrUnknownParticipant, forced)
		}
		s.previousSpeaker = forced
		return forced, nil
	}

	if s.cfg.SelectorFunc != nil {
		name, err := s.cfg.SelectorFunc(thread)
		if err != nil {
			return "", fmt.Errorf("selector function: %w", err)
		}
		if name != "" {
			if _, ok := s.participantSet[name]; !ok {
				return "", fmt.Errorf("%w: selector function returned %q", ErrUnknownParticipant, name)
			}
			s.previousSpeaker = name
			return name, nil
		}
	}

	participants := candidates
	if s.cfg.CandidateFunc != nil {
		cands, err := s.cfg.CandidateFunc(thread)
		if err != nil {
			return "", fmt.Errorf("candidate function: %w", err)
		}
		if len(cands) == 0 {
			return "", ErrEmptyCandidates
		}
		for _, c := range cands {
			if _, ok := s.participantSet[c]; !ok {
				return "", fmt.Errorf("%w: candidate function returned %q", ErrUnknownParticipant, c)
			}
		}
		participants = cands
	}

	if len(participants) == 1 {
		s.previousSpeaker = participants[0]
		return participants[0], nil
	}

	state, err := chain.CollectStateForSelector(ctx)
	if err != nil {
		return "", err
	}

	name, err := s.selectViaLLM(ctx, thread, participants, state)
	if err != nil {
		return "", err
	}
	s.previousSpeaker = name
	return name, nil
}

// defaultCandidates is every participant minus the previous speaker,
// unless repeats are allowed or there is no previous speaker yet.
func (s *selector) defaultCandidates() []string {
	if s.previousSpeaker == "" || s.cfg.AllowRepeatedSpeaker {
		return append([]string(nil), s.cfg.Participants...)
	}
	out := make([]string, 0, len(s.cfg.Participants)-1)
	for _, p := range s.cfg.Participants {
		if p != s.previousSpeaker {
			out = append(out, p)
		}
	}
	return out
}

type selectorPromptVars struct {
	Roles            string
	Participants     string
	History          string
	StateOfRun       string
	HandoffContext   string
}

func (s *selector) renderPrompt(thread events.Thread, participants []string, state plugin.StateView) (string, error) {
	var roles strings.Builder
	for _, name := range s.cfg.Participants {
		fmt.Fprintf(&roles, "%s: %s\n", name, s.cfg.ParticipantRoles[name])
	}
	vars := selectorPromptVars{
		Roles:          strings.TrimSpace(roles.String()),
		Participants:   fmt.Sprintf("%v", participants),
		History:        renderThreadHistory(thread),
		StateOfRun:     state["state_of_run"],
		HandoffContext: state["handoff_context"],
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render selector prompt: %w", err)
	}
	return buf.String(), nil
}

// selectViaLLM is the retry/ambiguity-feedback loop: call the model, parse
// mentions out of its reply, and either accept a single unambiguous
// unparalleled mention or append a corrective feedback message and try
// again, up to MaxSelectorAttempts. On exhaustion it falls back to the
// previous speaker, else the first candidate (spec.md §4.1 step 4).
func (s *selector) selectViaLLM(ctx context.Context, thread events.Thread, participants []string, state plugin.StateView) (string, error) {
	prompt, err := s.renderPrompt(thread, participants, state)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}

	for attempt := 0; attempt < s.cfg.MaxSelectorAttempts; attempt++ {
		result, err := s.cfg.Client.Create(ctx, messages, llm.Options{Model: s.cfg.Model})
		if err != nil {
			return "", fmt.Errorf("selector LLM call (attempt %d): %w", attempt+1, err)
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: result.Content})

		mentions := mentionedAgents(result.Content, s.cfg.Participants)
		switch len(mentions) {
		case 0:
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("No valid name was mentioned. Please select from: %v.", participants),
			})
		case 1:
			var name string
			for n := range mentions {
				name = n
			}
			if !s.cfg.AllowRepeatedSpeaker && s.previousSpeaker != "" && name == s.previousSpeaker {
				messages = append(messages, llm.Message{
					Role:    llm.RoleUser,
					Content: fmt.Sprintf("Repeated speaker is not allowed, please select a different name from: %v.", participants),
				})
				continue
			}
			return name, nil
		default:
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("Expected exactly one name to be mentioned. Please select only one from: %v.", participants),
			})
		}
	}

	if s.previousSpeaker != "" {
		return s.previousSpeaker, nil
	}
	return participants[0], nil
}

// mentionedAgents counts occurrences of each name in content, matching a
// name at a word boundary either verbatim, with underscores replaced by
// spaces, or with underscores escaped - the three forms the original
// implementation's regex-based mention counter recognised. Go's RE2 engine
// has no lookaround, so word boundaries (\b) stand in for the original's
// surrounding-non-word-character lookahead/lookbehind pair.
func mentionedAgents(content string, names []string) map[string]int {
	mentions := make(map[string]int)
	for _, name := range names {
		variants := []string{name, strings.ReplaceAll(name, "_", " "), strings.ReplaceAll(name, "_", `\_`)}
		quoted := make([]string, len(variants))
		for i, v := range variants {
			quoted[i] = regexp.QuoteMeta(v)
		}
		re := regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
		count := len(re.FindAllString(content, -1))
		if count > 0 {
			mentions[name] = count
		}
	}
	return mentions
}

// renderThreadHistory formats a thread's ChatMessage entries as
// "<source> : <content>" lines joined by blank lines, the same shape
// internal/agentcontainer uses for its own buffer so the selector prompt
// and the agent prompts share one transcript convention (grounded on
// _selector_group_chat.py's construct_message_history).
func renderThreadHistory(thread events.Thread) string {
	lines := make([]string, 0, len(thread))
	for _, ev := range thread {
		cm, ok := ev.(events.ChatMessage)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s : %s", cm.EventSource(), cm.Content))
	}
	return strings.Join(lines, "\n\n")
}

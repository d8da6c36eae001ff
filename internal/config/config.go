package config

import (
	"fmt"
	"time"
)

// Team is the top-level YAML document describing one group-chat team: its
// participants, speaker-selection policy, termination conditions, and
// plugin wiring. This is the Go-native replacement for the "YAML
// configuration loader for agent definitions and team composition" the
// spec names as an external collaborator (spec.md §1) — the loader lives
// in this repo because something concrete has to parse it, but its output
// is consumed only at the edges (cmd/groupchat), never by the core
// packages themselves.
type Team struct {
	Name         string            `yaml:"name"`
	Participants []ParticipantSpec `yaml:"participants"`
	Selector     SelectorSpec      `yaml:"selector"`
	Termination  TerminationSpec   `yaml:"termination"`
	Plugins      PluginsSpec       `yaml:"plugins"`
	LLM          LLMSpec           `yaml:"llm"`
	Gateway      GatewaySpec       `yaml:"gateway"`
	Session      SessionSpec       `yaml:"session"`
}

// ParticipantSpec describes one agent in the team.
type ParticipantSpec struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Model        string   `yaml:"model"`
	MaxTokens    int      `yaml:"max_tokens"`
	Tools        []string `yaml:"tools"`
}

// SelectorSpec configures speaker selection.
type SelectorSpec struct {
	PromptTemplate       string `yaml:"prompt"`
	AllowRepeatedSpeaker bool   `yaml:"allow_repeated_speaker"`
	MaxAttempts          int    `yaml:"max_attempts"`
	Model                string `yaml:"model"`
}

// TerminationSpec configures the termination predicate. Both fields may be
// set; they combine with OR semantics via groupchat.Any, matching the
// spec's "pluggable predicate... additionally enforces max_turns" wording
// (spec.md §4.1 "Termination").
type TerminationSpec struct {
	MaxTurns   int    `yaml:"max_turns"`
	TextMention string `yaml:"text_mention"`
}

// PluginsSpec configures the two built-in plugins.
type PluginsSpec struct {
	StateContext      StateContextSpec      `yaml:"state_context"`
	AnalysisWatchlist AnalysisWatchlistSpec `yaml:"analysis_watchlist"`
}

type StateContextSpec struct {
	Enabled                   bool   `yaml:"enabled"`
	InitialStateOfRun         string `yaml:"initial_state_of_run"`
	InitialHandoffContext     string `yaml:"initial_handoff_context"`
	UserProxyName             string `yaml:"user_proxy_name"`
	UpdateStateOnHumanMessage *bool  `yaml:"update_state_on_human_message"`
}

type AnalysisWatchlistSpec struct {
	Enabled          bool             `yaml:"enabled"`
	TriggerThreshold int              `yaml:"trigger_threshold"`
	UserProxyName    string           `yaml:"user_proxy_name"`
	Components       []ComponentSpec  `yaml:"components"`
}

type ComponentSpec struct {
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
}

// LLMSpec selects and configures the concrete llm.Client adapter
// (spec.md §4.8 domain stack addition).
type LLMSpec struct {
	Provider  string `yaml:"provider"` // "anthropic" | "openai"
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GatewaySpec configures the websocket gateway (spec.md §4.7).
type GatewaySpec struct {
	ListenAddr string  `yaml:"listen_addr"`
	JWT        JWTSpec `yaml:"jwt"`
}

type JWTSpec struct {
	Enabled   bool   `yaml:"enabled"`
	SecretEnv string `yaml:"secret_env"`
}

// SessionSpec configures session persistence, the idle reaper, and the
// optional SQLite session index (spec.md §4.7, §6.4).
type SessionSpec struct {
	StateDir  string `yaml:"state_dir"`
	IdleTTL   string `yaml:"idle_ttl"`
	ReapCron  string `yaml:"reap_cron"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

// IdleTTLDuration parses IdleTTL, defaulting to 30 minutes when unset or
// unparseable.
func (s SessionSpec) IdleTTLDuration() time.Duration {
	if s.IdleTTL == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(s.IdleTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// Load reads and validates a team configuration file, resolving any
// $include directives.
func Load(path string) (*Team, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	var team Team
	if err := remarshal(raw, &team); err != nil {
		return nil, err
	}
	if err := team.Validate(); err != nil {
		return nil, fmt.Errorf("invalid team config %s: %w", path, err)
	}
	return &team, nil
}

// Validate checks the configuration-error class the spec names:
// "missing participants, duplicate names, invalid termination" (spec.md §7
// "Configuration").
func (t *Team) Validate() error {
	if len(t.Participants) == 0 {
		return fmt.Errorf("team %q: at least one participant is required", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Participants))
	for _, p := range t.Participants {
		if p.Name == "" {
			return fmt.Errorf("team %q: participant with empty name", t.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("team %q: duplicate participant name %q", t.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if t.Termination.MaxTurns == 0 && t.Termination.TextMention == "" {
		return fmt.Errorf("team %q: termination requires max_turns or text_mention", t.Name)
	}
	if t.Plugins.AnalysisWatchlist.Enabled {
		for _, c := range t.Plugins.AnalysisWatchlist.Components {
			if c.Label == "" {
				return fmt.Errorf("team %q: analysis_watchlist component missing label", t.Name)
			}
		}
	}
	return nil
}

// ParticipantNames returns the configured participant names in order.
func (t *Team) ParticipantNames() []string {
	names := make([]string, len(t.Participants))
	for i, p := range t.Participants {
		names[i] = p.Name
	}
	return names
}

// ParticipantRoles returns the name->description map the selector prompt
// renders as "roles" (spec.md §4.1).
func (t *Team) ParticipantRoles() map[string]string {
	roles := make(map[string]string, len(t.Participants))
	for _, p := range t.Participants {
		roles[p.Name] = p.Description
	}
	return roles
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/haasonsaas/groupchat/internal/agentcontainer"
	"github.com/haasonsaas/groupchat/internal/config"
	"github.com/haasonsaas/groupchat/internal/groupchat"
	"github.com/haasonsaas/groupchat/internal/inputqueue"
	"github.com/haasonsaas/groupchat/internal/llm"
	"github.com/haasonsaas/groupchat/internal/llm/anthropicclient"
	"github.com/haasonsaas/groupchat/internal/llm/openaiclient"
	"github.com/haasonsaas/groupchat/internal/metrics"
	"github.com/haasonsaas/groupchat/internal/plugin"
	"github.com/haasonsaas/groupchat/internal/plugin/analysiswatchlist"
	"github.com/haasonsaas/groupchat/internal/plugin/statecontext"
	"github.com/haasonsaas/groupchat/internal/session"
	"github.com/haasonsaas/groupchat/internal/telemetry"
	"github.com/haasonsaas/groupchat/internal/workbench"
)

// runtime holds the process-wide collaborators a session builder closes
// over: one shared LLM client, one shared metrics registry, and the
// currently loaded team. Every session gets its own groupchat.Manager,
// plugin chain, and agent containers, but they all share these.
//
// team is held behind an atomic.Pointer rather than a plain field because
// config.Watcher swaps it out from its own goroutine on every successful
// hot reload of the team config file; buildSession always reads the
// latest value, so a config edit (a new system prompt, an adjusted
// selector prompt, a raised max_turns) takes effect for the next session
// built without a process restart. Sessions already running keep the
// config snapshot they were built with.
type runtime struct {
	team    atomic.Pointer[config.Team]
	client  llm.Client
	metrics *metrics.Metrics
	tracer  *telemetry.Tracer
	logger  *slog.Logger
}

func (rt *runtime) currentTeam() *config.Team { return rt.team.Load() }

func (rt *runtime) setTeam(t *config.Team) { rt.team.Store(t) }

func newLLMClient(spec config.LLMSpec) (llm.Client, error) {
	apiKeyEnv := spec.APIKeyEnv
	switch spec.Provider {
	case "anthropic":
		if apiKeyEnv == "" {
			apiKeyEnv = "ANTHROPIC_API_KEY"
		}
		return anthropicclient.New(os.Getenv(apiKeyEnv)), nil
	case "openai":
		if apiKeyEnv == "" {
			apiKeyEnv = "OPENAI_API_KEY"
		}
		return openaiclient.New(os.Getenv(apiKeyEnv)), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want \"anthropic\" or \"openai\")", spec.Provider)
	}
}

// buildSession is a session.Builder closure over rt, constructing a fresh
// set of agent containers, plugin chain, and groupchat.Manager every time
// a new session id is seen (spec.md §4.7 "GetOrCreate... builds a fresh
// one (tree + manager + queue)").
func (rt *runtime) buildSession(ctx context.Context, id string) (*session.Session, error) {
	team := rt.currentTeam()

	onDropChunk := func() {
		if rt.metrics != nil {
			rt.metrics.GatewayDroppedChunks.Inc()
		}
	}
	broadcaster := session.NewBroadcaster(onDropChunk)
	queue := inputqueue.New(broadcaster)

	containers := make(map[string]*agentcontainer.Container, len(team.Participants))
	for _, p := range team.Participants {
		var tools workbench.Workbench
		if len(p.Tools) > 0 {
			mem := workbench.NewMemory()
			if err := workbench.RegisterBuiltins(mem, nil); err != nil {
				return nil, fmt.Errorf("registering builtin tools: %w", err)
			}
			tools = workbench.NewFilter(mem, p.Tools)
		}
		c, err := agentcontainer.New(agentcontainer.Config{
			Name:                 p.Name,
			Description:          p.Description,
			SystemPromptTemplate: p.SystemPrompt,
			Client:               rt.client,
			Tools:                tools,
			Model:                firstNonEmpty(p.Model, team.LLM.Model),
			MaxTokens:            p.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("building container for %q: %w", p.Name, err)
		}
		containers[p.Name] = c
	}

	plugins := make([]plugin.Plugin, 0, 2)
	if team.Plugins.StateContext.Enabled {
		sc := team.Plugins.StateContext
		updateOnHuman := true
		if sc.UpdateStateOnHumanMessage != nil {
			updateOnHuman = *sc.UpdateStateOnHumanMessage
		}
		plugins = append(plugins, statecontext.New(rt.client, statecontext.Config{
			InitialStateOfRun:         sc.InitialStateOfRun,
			InitialHandoffContext:     sc.InitialHandoffContext,
			UserProxyName:             sc.UserProxyName,
			ParticipantNames:          team.ParticipantNames(),
			UpdateStateOnHumanMessage: updateOnHuman,
		}, rt.logger))
	}
	if team.Plugins.AnalysisWatchlist.Enabled {
		aw := team.Plugins.AnalysisWatchlist
		components := make([]analysiswatchlist.Component, 0, len(aw.Components))
		for _, c := range aw.Components {
			components = append(components, analysiswatchlist.NewComponent(c.Label, c.Description))
		}
		service := analysiswatchlist.NewService(rt.client)
		plugins = append(plugins, analysiswatchlist.New(service, analysiswatchlist.Config{
			Components:       components,
			TriggerThreshold: aw.TriggerThreshold,
			UserProxyName:    aw.UserProxyName,
		}, broadcaster.Emit, rt.logger))
	}
	chain := plugin.NewChain(plugins...)

	var termConds []groupchat.Condition
	if team.Termination.MaxTurns > 0 {
		termConds = append(termConds, groupchat.NewMaxMessages(team.Termination.MaxTurns))
	}
	if team.Termination.TextMention != "" {
		termConds = append(termConds, groupchat.NewTextMention(team.Termination.TextMention))
	}

	gcm, err := groupchat.New(groupchat.Config{
		Name:         "manager",
		Participants: team.ParticipantNames(),
		Containers:   containers,
		Chain:        chain,
		Selection: groupchat.SelectionConfig{
			Participants:           team.ParticipantNames(),
			ParticipantRoles:       team.ParticipantRoles(),
			SelectorPromptTemplate: team.Selector.PromptTemplate,
			AllowRepeatedSpeaker:   team.Selector.AllowRepeatedSpeaker,
			MaxSelectorAttempts:    team.Selector.MaxAttempts,
			Client:                 rt.client,
			Model:                  firstNonEmpty(team.Selector.Model, team.LLM.Model),
		},
		Termination: groupchat.NewAny(termConds...),
		MaxTurns:    team.Termination.MaxTurns,
		Queue:       queue,
		Emitter:     broadcaster,
		Tracer:      rt.tracer,
		Metrics:     rt.metrics,
		Logger:      rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building group-chat manager: %w", err)
	}

	stateFilePath := ""
	if team.Session.StateDir != "" {
		stateFilePath = filepath.Join(team.Session.StateDir, id+".json")
	}

	return session.NewSession(id, team.Name, gcm, queue, broadcaster, stateFilePath), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

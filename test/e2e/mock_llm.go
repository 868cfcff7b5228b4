package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// promptRoles maps the opening words of each known system prompt to the
// short role name used for scripting and call assertions. The roster
// prompts all open with a distinct "You are the ..." lead, so a prefix
// match is unambiguous.
var promptRoles = map[string]string{
	"You are the orchestrator":       "orchestrator",
	"You are the planning agent":     "planner",
	"You are the system architect":   "architect",
	"You are the UI designer":        "ui_designer",
	"You are the frontend developer": "frontend_dev",
	"You are the backend developer":  "backend_dev",
	"You are the tester":             "tester",
	"You are the bug fixer":          "bug_fixer",
	"You are the reviewer":           "reviewer",
	"You are the compliance agent":   "compliance",
	"You are the routing policy":     "routing_policy",
}

func roleFromPrompt(system string) string {
	for lead, role := range promptRoles {
		if strings.HasPrefix(system, lead) {
			return role
		}
	}
	return "unknown"
}

// ScriptEntry is one canned provider turn. Text and Err are mutually
// exclusive; the blocking fields park the call before it resolves, which
// lets tests hold an agent mid-execution while they cancel or time out
// the workflow.
type ScriptEntry struct {
	Text string
	Err  error

	// BlockUntilCancelled parks the call until its context ends and
	// returns the context error.
	BlockUntilCancelled bool

	// WaitCh, when set, parks the call until the channel closes or the
	// context ends.
	WaitCh <-chan struct{}

	// OnBlock, when set, receives one notification the moment the call
	// parks. Use a buffered channel.
	OnBlock chan<- struct{}
}

// ScriptedProvider replays canned responses in place of a real LLM.
// Entries routed to a role are consumed by that role's calls in order;
// roles without a routed script fall back to the shared sequential
// script. Exhausting a script fails the call loudly so a scenario that
// drifts from its expected agent sequence surfaces immediately.
type ScriptedProvider struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int
	calls      []string
}

func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential appends entries to the shared fallback script.
func (p *ScriptedProvider) AddSequential(entries ...ScriptEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequential = append(p.sequential, entries...)
}

// AddRouted appends entries consumed only by calls from the given role.
func (p *ScriptedProvider) AddRouted(role string, entries ...ScriptEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[role] = append(p.routes[role], entries...)
}

// Calls returns the role of every provider call so far, in order.
func (p *ScriptedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallCount reports how many calls the given role has made.
func (p *ScriptedProvider) CallCount(role string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == role {
			n++
		}
	}
	return n
}

func (p *ScriptedProvider) Name() string { return "scripted" }

func (p *ScriptedProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return p.respond(ctx, req.System)
}

func (p *ScriptedProvider) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func (p *ScriptedProvider) SpawnSubagent(ctx context.Context, role, task string, opts llm.SubagentOptions) (llm.Response, error) {
	return p.respond(ctx, role)
}

func (p *ScriptedProvider) respond(ctx context.Context, system string) (llm.Response, error) {
	role := roleFromPrompt(system)

	p.mu.Lock()
	p.calls = append(p.calls, role)
	entry, err := p.nextEntryLocked(role)
	p.mu.Unlock()
	if err != nil {
		return llm.Response{}, err
	}

	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if entry.Err != nil {
		return llm.Response{}, entry.Err
	}
	return llm.Response{
		Content:    entry.Text,
		Usage:      models.TokenUsage{InputTokens: 10, OutputTokens: 5},
		Model:      "scripted",
		StopReason: "end_turn",
	}, nil
}

func (p *ScriptedProvider) nextEntryLocked(role string) (ScriptEntry, error) {
	if entries, ok := p.routes[role]; ok {
		i := p.routeIndex[role]
		if i < len(entries) {
			p.routeIndex[role] = i + 1
			return entries[i], nil
		}
		return ScriptEntry{}, fmt.Errorf("scripted provider: role %q exhausted its %d routed entries", role, len(entries))
	}
	if p.seqIndex < len(p.sequential) {
		entry := p.sequential[p.seqIndex]
		p.seqIndex++
		return entry, nil
	}
	return ScriptEntry{}, fmt.Errorf("scripted provider: no script for role %q (sequential %d/%d consumed)", role, p.seqIndex, len(p.sequential))
}

var _ llm.Provider = (*ScriptedProvider)(nil)

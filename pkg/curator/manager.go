package curator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	// DefaultTokenBudget caps the total curated context size.
	DefaultTokenBudget = 8000
	// DefaultCacheTTL expires cached source fetches.
	DefaultCacheTTL = 60 * time.Second
	// DefaultTimeout bounds one curation pass.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxItems is requested from a source when the requirement does
	// not say otherwise.
	DefaultMaxItems = 20
	// MaxQueryLength is the longest query the source contract accepts.
	MaxQueryLength = 10_000
	// MaxSourceItems is the most a single fetch may request.
	MaxSourceItems = 100
)

// FetchParams is the validated parameter set passed to a context source.
type FetchParams struct {
	TenantID       string         `json:"tenant_id"`
	ProjectID      string         `json:"project_id"`
	Query          string         `json:"query,omitempty"`
	MaxItems       int            `json:"max_items"`
	Filter         map[string]any `json:"filter,omitempty"`
	ScoreThreshold float64        `json:"score_threshold,omitempty"`
}

// Validate enforces the source parameter schema.
func (p FetchParams) Validate() error {
	if _, err := uuid.Parse(p.TenantID); err != nil {
		return faults.New(faults.CodeValidation, "tenant id must be a uuid")
	}
	if _, err := uuid.Parse(p.ProjectID); err != nil {
		return faults.New(faults.CodeValidation, "project id must be a uuid")
	}
	if len(p.Query) > MaxQueryLength {
		return faults.New(faults.CodeValidation, "query exceeds the maximum length").
			WithDetail("length", len(p.Query)).
			WithDetail("limit", MaxQueryLength)
	}
	if p.MaxItems < 1 || p.MaxItems > MaxSourceItems {
		return faults.New(faults.CodeValidation, "max items must be between 1 and 100").
			WithDetail("max_items", p.MaxItems)
	}
	if p.ScoreThreshold < 0 || p.ScoreThreshold > 1 {
		return faults.New(faults.CodeValidation, "score threshold must be between 0 and 1").
			WithDetail("score_threshold", p.ScoreThreshold)
	}
	return nil
}

// Source supplies context items of one type.
type Source interface {
	Type() models.ContextType
	Fetch(ctx context.Context, params FetchParams) ([]models.ContextItem, error)
	IsAvailable(ctx context.Context) bool
}

// Budget controls how curated context is portioned. A zero per-type cap
// means the type is limited only by the total.
type Budget struct {
	Total    int
	PerType  map[models.ContextType]int
	Priority []models.ContextType
}

// DefaultPriority orders context types from most to least essential.
func DefaultPriority() []models.ContextType {
	return []models.ContextType{
		models.ContextCurrentTask,
		models.ContextProjectConfig,
		models.ContextSourceCode,
		models.ContextLessonsLearned,
		models.ContextAgentOutputs,
		models.ContextDesignSystem,
		models.ContextComplianceRules,
		models.ContextTestResults,
	}
}

// Config tunes the manager. Zero values select the defaults.
type Config struct {
	Budget   Budget
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Request describes one curation pass: the requirements the agent declared,
// the caller's auth, and the task query.
type Request struct {
	Requirements []models.ContextRequirement
	Auth         models.AuthContext
	ProjectID    string
	Query        string
}

// Manager curates context from registered sources. Sources register once at
// startup; curation runs concurrently from many workflows.
type Manager struct {
	mu      sync.RWMutex
	sources map[models.ContextType]Source

	budget  Budget
	cache   *Cache
	timeout time.Duration
}

// NewManager creates a manager with the given configuration.
func NewManager(cfg Config) *Manager {
	budget := cfg.Budget
	if budget.Total <= 0 {
		budget.Total = DefaultTokenBudget
	}
	if len(budget.Priority) == 0 {
		budget.Priority = DefaultPriority()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		sources: make(map[models.ContextType]Source),
		budget:  budget,
		cache:   NewCache(ttl),
		timeout: timeout,
	}
}

// RegisterSource adds a source for its declared type. The last registration
// per type wins; overwriting an existing source is logged.
func (m *Manager) RegisterSource(src Source) error {
	t := src.Type()
	if !t.IsValid() {
		return faults.New(faults.CodeValidation, "unknown context type").
			WithDetail("type", string(t))
	}
	m.mu.Lock()
	if _, exists := m.sources[t]; exists {
		slog.Warn("overwriting registered context source", "type", t)
	}
	m.sources[t] = src
	m.mu.Unlock()
	return nil
}

// Cache exposes the context cache for invalidation and stats.
func (m *Manager) Cache() *Cache {
	return m.cache
}

func (m *Manager) source(t models.ContextType) (Source, bool) {
	m.mu.RLock()
	src, ok := m.sources[t]
	m.mu.RUnlock()
	return src, ok
}

// Curate assembles the context window for one agent execution: required
// requirements first, then optional ones, both in budget priority order;
// items are added greedily until the total budget or the per-type cap is
// hit. Required types that yield nothing are reported in MissingRequired.
func (m *Manager) Curate(ctx context.Context, req Request) (models.CuratedContext, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := req.Auth.Validate(time.Now()); err != nil {
		return models.CuratedContext{}, err
	}

	query := req.Query
	if len(query) > MaxQueryLength {
		query = query[:MaxQueryLength]
	}

	ordered := m.orderRequirements(req.Requirements)
	curated := models.CuratedContext{TokenBudget: m.budget.Total}
	remaining := m.budget.Total
	typeUsed := make(map[models.ContextType]int)

	for _, requirement := range ordered {
		if err := curationErr(ctx, started, m.timeout); err != nil {
			return models.CuratedContext{}, err
		}
		if remaining <= 0 {
			if requirement.Required {
				curated.MissingRequired = append(curated.MissingRequired, requirement.Type)
			}
			curated.Truncated = true
			continue
		}

		items, ok := m.fetchForRequirement(ctx, requirement, req, query)
		if err := curationErr(ctx, started, m.timeout); err != nil {
			return models.CuratedContext{}, err
		}
		if !ok || len(items) == 0 {
			if requirement.Required {
				curated.MissingRequired = append(curated.MissingRequired, requirement.Type)
			}
			continue
		}

		typeCap := m.budget.PerType[requirement.Type]
		added := 0
		for _, item := range items {
			cost := estimateTokens(item.Content)
			if cost > remaining || (typeCap > 0 && typeUsed[requirement.Type]+cost > typeCap) {
				curated.Truncated = true
				break
			}
			curated.Items = append(curated.Items, item)
			curated.TokensUsed += cost
			typeUsed[requirement.Type] += cost
			remaining -= cost
			added++
		}
		if added == 0 && requirement.Required {
			curated.MissingRequired = append(curated.MissingRequired, requirement.Type)
		}
	}

	return curated, nil
}

// fetchForRequirement resolves one requirement through the cache and the
// registered source. The bool result is false when the type has no usable
// source or the fetch failed.
func (m *Manager) fetchForRequirement(ctx context.Context, requirement models.ContextRequirement, req Request, query string) ([]models.ContextItem, bool) {
	src, ok := m.source(requirement.Type)
	if !ok {
		slog.Warn("no source registered for context type", "type", requirement.Type)
		return nil, false
	}
	if !src.IsAvailable(ctx) {
		slog.Warn("context source unavailable", "type", requirement.Type)
		return nil, false
	}

	key := cacheKey(req.Auth.TenantID, req.ProjectID, requirement.Type, query)
	if items, hit := m.cache.Get(key); hit {
		return filterItems(items, requirement.Type, 0), true
	}

	maxItems := requirement.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if maxItems > MaxSourceItems {
		maxItems = MaxSourceItems
	}
	params := FetchParams{
		TenantID:  req.Auth.TenantID,
		ProjectID: req.ProjectID,
		Query:     query,
		MaxItems:  maxItems,
		Filter:    requirement.Filter,
	}
	if err := params.Validate(); err != nil {
		slog.Warn("invalid context fetch params", "type", requirement.Type, "error", err)
		return nil, false
	}

	items, err := src.Fetch(ctx, params)
	if err != nil {
		slog.Warn("failed to fetch context", "type", requirement.Type, "error", err)
		return nil, false
	}
	items = filterItems(items, requirement.Type, params.ScoreThreshold)
	m.cache.Set(key, items)
	return items, true
}

// filterItems drops items with no content or below the score threshold and
// stamps missing type fields.
func filterItems(items []models.ContextItem, t models.ContextType, scoreThreshold float64) []models.ContextItem {
	filtered := make([]models.ContextItem, 0, len(items))
	for _, item := range items {
		if item.Content == nil {
			continue
		}
		if scoreThreshold > 0 && item.Score < scoreThreshold {
			continue
		}
		if item.Type == "" {
			item.Type = t
		}
		filtered = append(filtered, item)
	}
	return filtered
}

// orderRequirements sorts requirements required-first, then by budget
// priority; unknown types sort after known ones by name for determinism.
func (m *Manager) orderRequirements(requirements []models.ContextRequirement) []models.ContextRequirement {
	rank := make(map[models.ContextType]int, len(m.budget.Priority))
	for i, t := range m.budget.Priority {
		rank[t] = i
	}
	priorityOf := func(t models.ContextType) int {
		if r, ok := rank[t]; ok {
			return r
		}
		return len(rank)
	}

	ordered := append([]models.ContextRequirement(nil), requirements...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Required != ordered[j].Required {
			return ordered[i].Required
		}
		pi, pj := priorityOf(ordered[i].Type), priorityOf(ordered[j].Type)
		if pi != pj {
			return pi < pj
		}
		return ordered[i].Type < ordered[j].Type
	})
	return ordered
}

// curationErr maps a finished context to the fault the caller should see:
// deadline expiry becomes an operation timeout, cancellation passes through.
func curationErr(ctx context.Context, started time.Time, timeout time.Duration) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return faults.NewTimeout("context curation", time.Since(started), timeout)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return nil
	}
}

// estimateTokens approximates the token cost of content as
// ceil(compact-JSON bytes / 4).
func estimateTokens(content any) int {
	encoded, err := json.Marshal(content)
	if err != nil {
		return 1
	}
	return (len(encoded) + 3) / 4
}

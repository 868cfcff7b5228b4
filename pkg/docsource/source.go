// Package docsource serves project documentation from a GitHub repository
// as curated context. It is the registered source for the project_config
// context type: agents that declare the requirement receive the markdown
// documents most relevant to their task query.
package docsource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/curator"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const defaultCacheTTL = 5 * time.Minute

// DocContent is the content payload of one project_config item.
type DocContent struct {
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
}

// Source fetches markdown documentation from the configured repository.
// Listings and contents are cached below the curator because they are
// tenant-independent; the curator's own cache is scoped per tenant.
type Source struct {
	github *GitHubClient
	cache  *Cache
	cfg    *config.DocsConfig
	label  string // "owner/repo" when the repo URL parses, else "github"
	logger *slog.Logger
}

// NewSource creates a documentation source.
// githubToken is the resolved token value (empty string = no auth, public repos only).
func NewSource(cfg *config.DocsConfig, githubToken string) *Source {
	ttl := defaultCacheTTL
	if cfg != nil && cfg.CacheTTL > 0 {
		ttl = cfg.CacheTTL
	}

	label := "github"
	if cfg != nil && cfg.RepoURL != "" {
		if parts, err := ParseRepoURL(cfg.RepoURL); err == nil {
			label = parts.Owner + "/" + parts.Repo
		}
	}

	return &Source{
		github: NewGitHubClient(githubToken),
		cache:  NewCache(ttl),
		cfg:    cfg,
		label:  label,
		logger: slog.Default().With("component", "docsource"),
	}
}

// Type reports the context type this source serves.
func (s *Source) Type() models.ContextType {
	return models.ContextProjectConfig
}

// IsAvailable reports whether a documentation repository is configured.
// No network check: an unreachable repository surfaces as a fetch error.
func (s *Source) IsAvailable(context.Context) bool {
	return s.cfg != nil && s.cfg.RepoURL != ""
}

// Fetch lists the repository's markdown documents, ranks them against the
// task query, and downloads the top matches. The optional "path_prefix"
// filter restricts candidates to one subtree. A document that fails to
// download is skipped; the fetch fails only when every candidate does.
func (s *Source) Fetch(ctx context.Context, params curator.FetchParams) ([]models.ContextItem, error) {
	if !s.IsAvailable(ctx) {
		return nil, fmt.Errorf("documentation source is not configured")
	}

	docs, err := s.listDocs(ctx)
	if err != nil {
		return nil, err
	}
	docs = filterByPrefix(docs, params.Filter)

	tokens := queryTokens(params.Query)
	scored := make([]scoredDoc, 0, len(docs))
	for _, doc := range docs {
		score := matchScore(doc.Path, tokens)
		if params.ScoreThreshold > 0 && score < params.ScoreThreshold {
			continue
		}
		scored = append(scored, scoredDoc{ref: doc, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if max := params.MaxItems; max > 0 && max < len(scored) {
		scored = scored[:max]
	}

	items := make([]models.ContextItem, 0, len(scored))
	for _, cand := range scored {
		content, err := s.fetchContent(ctx, cand.ref.URL)
		if err != nil {
			s.logger.Warn("Failed to download document", "path", cand.ref.Path, "error", err)
			continue
		}
		items = append(items, models.ContextItem{
			ID:      cand.ref.URL,
			Type:    models.ContextProjectConfig,
			Content: DocContent{Path: cand.ref.Path, Markdown: content},
			Score:   cand.score,
			Source:  s.label,
		})
	}
	if len(items) == 0 && len(scored) > 0 {
		return nil, fmt.Errorf("all %d document downloads failed", len(scored))
	}
	return items, nil
}

// OverrideHTTPClientForTest replaces the internal GitHub client's HTTP client.
// For testing only.
func (s *Source) OverrideHTTPClientForTest(httpClient *http.Client) {
	s.github.httpClient = httpClient
}

// listDocs returns the repository's markdown listing, cached under the
// repo URL.
func (s *Source) listDocs(ctx context.Context) ([]DocRef, error) {
	if cached, ok := s.cache.Get(s.cfg.RepoURL); ok {
		if docs, ok := cached.([]DocRef); ok {
			return docs, nil
		}
	}

	docs, err := s.github.ListMarkdownFiles(ctx, s.cfg.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("list documents from %s: %w", s.cfg.RepoURL, err)
	}
	if docs == nil {
		docs = []DocRef{}
	}

	s.cache.Set(s.cfg.RepoURL, docs)
	return docs, nil
}

// fetchContent downloads one document, cached under its normalized raw URL.
func (s *Source) fetchContent(ctx context.Context, docURL string) (string, error) {
	if err := ValidateDocURL(docURL, s.cfg.AllowedDomains); err != nil {
		return "", err
	}

	key := ConvertToRawURL(docURL)
	if cached, ok := s.cache.Get(key); ok {
		if content, ok := cached.(string); ok {
			return content, nil
		}
	}

	content, err := s.github.DownloadContent(ctx, docURL)
	if err != nil {
		return "", err
	}

	s.cache.Set(key, content)
	return content, nil
}

type scoredDoc struct {
	ref   DocRef
	score float64
}

// filterByPrefix applies the optional path_prefix filter. The result is a
// fresh slice; the input may be the cached listing.
func filterByPrefix(docs []DocRef, filter map[string]any) []DocRef {
	prefix, _ := filter["path_prefix"].(string)
	if prefix == "" {
		return docs
	}
	kept := make([]DocRef, 0, len(docs))
	for _, doc := range docs {
		if strings.HasPrefix(doc.Path, prefix) {
			kept = append(kept, doc)
		}
	}
	return kept
}

// queryTokens lowercases the query and splits it on non-alphanumeric runes.
// Tokens shorter than three runes are noise and dropped.
func queryTokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// matchScore is the fraction of query tokens found in the document path.
// With no query every document scores 1, keeping the listing order.
func matchScore(path string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 1
	}
	lower := strings.ToLower(path)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

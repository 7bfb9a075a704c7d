package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/CortexTrade/internal/dataflows"
	"github.com/dyike/CortexTrade/internal/reasoner"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

const (
	searchSource = "web search"

	// Snippets shorter than this are kept verbatim.
	minSummaryChars = 50
	maxSummaryInput = 8000
	fallbackChars   = 500
)

// WebSearcher is satisfied by dataflows.BraveSearchClient.
type WebSearcher interface {
	Search(ctx context.Context, query string, count int) ([]dataflows.WebResult, error)
}

// ArticleFetcher is satisfied by dataflows.ArticleScraper.
type ArticleFetcher interface {
	Fetch(ctx context.Context, articleURL string) (*dataflows.Article, error)
}

// NewsResearcher runs a web search and condenses each hit for the suggester.
type NewsResearcher struct {
	searcher WebSearcher
	reasoner reasoner.Reasoner
	articles ArticleFetcher
	count    int
	timeout  time.Duration
	template prompt.ChatTemplate
}

type ResearcherOption func(*NewsResearcher)

func WithResultCount(n int) ResearcherOption {
	return func(r *NewsResearcher) {
		if n > 0 {
			r.count = n
		}
	}
}

// WithArticleFetcher enables downloading pages whose snippet is too short to summarise.
func WithArticleFetcher(f ArticleFetcher) ResearcherOption {
	return func(r *NewsResearcher) {
		r.articles = f
	}
}

// WithSearchTimeout bounds the search call. Summaries use the reasoner's own timeout.
func WithSearchTimeout(d time.Duration) ResearcherOption {
	return func(r *NewsResearcher) {
		r.timeout = d
	}
}

func NewNewsResearcher(searcher WebSearcher, r reasoner.Reasoner, opts ...ResearcherOption) *NewsResearcher {
	nr := &NewsResearcher{
		searcher: searcher,
		reasoner: r,
		count:    3,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(mustLoadPrompt("search_summary")),
			schema.UserMessage(`Please summarize the following web content for research query: "{query}"

Title: {title}
URL: {url}
Content: {content}...

Provide a concise summary that captures the key information relevant to the research query.`),
		),
	}
	for _, opt := range opts {
		opt(nr)
	}
	return nr
}

// DefaultQuery is used when the request has no search query.
func DefaultQuery(symbol string) string {
	return fmt.Sprintf("%s latest market news", strings.ToUpper(strings.TrimSpace(symbol)))
}

// Research returns one result per hit in rank order. Zero hits is an empty,
// non-nil slice.
func (nr *NewsResearcher) Research(ctx context.Context, query, symbol string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultQuery(symbol)
	}
	if nr.searcher == nil {
		return nil, models.ConfigError(searchSource, errors.New("no search client configured"))
	}

	searchCtx := ctx
	if nr.timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, nr.timeout)
		defer cancel()
	}
	hits, err := nr.searcher.Search(searchCtx, query, nr.count)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"query": query, "hits": len(hits)})
	log.Debug("web search returned")

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		text := nr.enrich(ctx, hit)
		results = append(results, models.SearchResult{
			Title:   hit.Title,
			URL:     hit.URL,
			Content: nr.condense(ctx, query, hit, text),
		})
	}
	return results, nil
}

// enrich swaps a short snippet for the page body when article fetching is on.
func (nr *NewsResearcher) enrich(ctx context.Context, hit dataflows.WebResult) string {
	text := strings.TrimSpace(hit.Description)
	if nr.articles == nil || hit.URL == "" || utf8.RuneCountInString(text) >= minSummaryChars {
		return text
	}
	article, err := nr.articles.Fetch(ctx, hit.URL)
	if err != nil {
		logrus.WithField("url", hit.URL).WithError(err).Debug("article fetch failed, keeping snippet")
		return text
	}
	if utf8.RuneCountInString(article.Content) > utf8.RuneCountInString(text) {
		return article.Content
	}
	return text
}

func (nr *NewsResearcher) condense(ctx context.Context, query string, hit dataflows.WebResult, text string) string {
	if utf8.RuneCountInString(text) < minSummaryChars {
		if text == "" {
			return "No content available"
		}
		return text
	}

	summary, err := nr.summarise(ctx, query, hit, text)
	if err != nil {
		logrus.WithField("url", hit.URL).WithError(err).Warn("summary failed, using truncated snippet")
		return truncateRunes(text, fallbackChars) + "..."
	}
	return summary
}

func (nr *NewsResearcher) summarise(ctx context.Context, query string, hit dataflows.WebResult, text string) (string, error) {
	if nr.reasoner == nil {
		return "", errors.New("no summariser configured")
	}
	title := hit.Title
	if title == "" {
		title = "No title"
	}
	msgs, err := nr.template.Format(ctx, map[string]any{
		"query":   query,
		"title":   title,
		"url":     hit.URL,
		"content": truncateRunes(text, maxSummaryInput),
	})
	if err != nil {
		return "", fmt.Errorf("format summary prompt: %w", err)
	}

	raw, err := nr.reasoner.Generate(ctx, msgs, searchSummarySchema)
	if err != nil {
		return "", err
	}
	var reply struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", models.ValidationError(searchSource, fmt.Errorf("decode summary: %w", err))
	}
	if s := strings.TrimSpace(reply.Summary); s != "" {
		return s, nil
	}
	return "", models.ValidationError(searchSource, errors.New("empty summary"))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

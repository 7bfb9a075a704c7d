package dataflows

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyike/CortexTrade/models"
	"github.com/go-resty/resty/v2"
)

const articleSource = "article"

// Article is the readable part of a news page.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

var (
	titleSelectors   = []string{"h1", "title", ".headline", ".article-title", ".entry-title"}
	contentSelectors = []string{
		".article-content", ".entry-content", ".post-content",
		".article-body", ".story-body", "article p", ".content",
	}
)

// ArticleScraper downloads a result page and extracts its body text. Used to
// enrich search hits whose snippet is too short to summarise.
type ArticleScraper struct {
	client *resty.Client
	cache  *CacheManager
	retry  *RetryConfig
}

func NewArticleScraper(opts ClientOptions) *ArticleScraper {
	client := resty.New()
	client.SetTimeout(opts.timeout())
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; CortexTrade/1.0)")
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ArticleScraper{
		client: client,
		cache:  NewCacheManager(opts.CacheDir, ttl, opts.Cache),
		retry:  opts.retry(),
	}
}

// Fetch returns the article at articleURL. Only absolute http(s) URLs are accepted.
func (as *ArticleScraper) Fetch(ctx context.Context, articleURL string) (*Article, error) {
	u, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, models.ValidationError(articleSource, fmt.Errorf("invalid article URL %q", articleURL))
	}

	var cached Article
	if as.cache.Get("article", "content", u.String(), &cached) {
		return &cached, nil
	}

	var result *Article
	err = WithRetry(ctx, as.retry, func() error {
		resp, err := as.client.R().SetContext(ctx).Get(u.String())
		if err != nil {
			return models.UpstreamError(articleSource, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return httpStatusError(articleSource, resp.StatusCode())
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil {
			return Permanent(models.UpstreamError(articleSource, fmt.Errorf("parse html: %w", err)))
		}
		result = extractArticle(doc, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Content == "" {
		return nil, models.UpstreamError(articleSource, errors.New("no readable content"))
	}

	_ = as.cache.Set("article", "content", u.String(), result)
	return result, nil
}

func extractArticle(doc *goquery.Document, u *url.URL) *Article {
	doc.Find("script, style, nav, footer, aside").Remove()

	title := ""
	for _, selector := range titleSelectors {
		if t := collapse(doc.Find(selector).First().Text()); t != "" {
			title = t
			break
		}
	}

	content := ""
	for _, selector := range contentSelectors {
		if c := collapse(doc.Find(selector).Text()); c != "" {
			content = c
			break
		}
	}

	source := ""
	if meta := doc.Find("meta[property='og:site_name']"); meta.Length() > 0 {
		source, _ = meta.Attr("content")
	}
	if source == "" {
		source = u.Host
	}

	return &Article{
		Title:   title,
		Content: content,
		URL:     u.String(),
		Source:  source,
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

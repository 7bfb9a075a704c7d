package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyike/CortexTrade/models"
	"github.com/go-resty/resty/v2"
)

const braveSource = "Brave Search"

// WebResult is one organic hit with its snippet reduced to plain text.
type WebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// BraveSearchClient queries the Brave web search API.
type BraveSearchClient struct {
	client *resty.Client
	apiKey string
	retry  *RetryConfig
}

func NewBraveSearchClient(opts ClientOptions) *BraveSearchClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1"
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(opts.timeout())
	client.SetHeader("Accept", "application/json")

	return &BraveSearchClient{
		client: client,
		apiKey: opts.APIKey,
		retry:  opts.retry(),
	}
}

// Search returns up to count results in rank order. No hits is not an error.
func (b *BraveSearchClient) Search(ctx context.Context, query string, count int) ([]WebResult, error) {
	if b.apiKey == "" {
		return nil, models.ConfigError(braveSource, fmt.Errorf("%w: BRAVE_API_KEY", models.ErrMissingCredentials))
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.ConfigError(braveSource, errors.New("empty query"))
	}
	if count <= 0 {
		count = 3
	}

	var payload braveResponse
	err := WithRetry(ctx, b.retry, func() error {
		resp, err := b.client.R().
			SetContext(ctx).
			SetHeader("X-Subscription-Token", b.apiKey).
			SetQueryParams(map[string]string{
				"q":     query,
				"count": strconv.Itoa(count),
			}).
			Get("/web/search")
		if err != nil {
			return models.UpstreamError(braveSource, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return httpStatusError(braveSource, resp.StatusCode())
		}
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			return Permanent(models.UpstreamError(braveSource, fmt.Errorf("decode results: %w", err)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]WebResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if len(results) == count {
			break
		}
		results = append(results, WebResult{
			Title:       StripHTML(r.Title),
			URL:         r.URL,
			Description: StripHTML(r.Description),
		})
	}
	return results, nil
}

// StripHTML returns the text content of an HTML fragment with whitespace collapsed.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

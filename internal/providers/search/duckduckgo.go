package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yoockh/sagecreek/internal/utils"
)

const duckDuckGoURL = "https://api.duckduckgo.com/"

// DuckDuckGo queries the Instant Answer API. It needs no key and returns
// topic summaries rather than full web results.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*DuckDuckGo)

func WithHTTPClient(c *http.Client) Option {
	return func(d *DuckDuckGo) {
		if c != nil {
			d.httpClient = c
		}
	}
}

func WithBaseURL(u string) Option {
	return func(d *DuckDuckGo) {
		if u != "" {
			d.baseURL = u
		}
	}
}

func NewDuckDuckGo(opts ...Option) *DuckDuckGo {
	d := &DuckDuckGo{
		baseURL:    duckDuckGoURL,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type instantAnswer struct {
	Heading        string  `json:"Heading"`
	AbstractText   string  `json:"AbstractText"`
	AbstractURL    string  `json:"AbstractURL"`
	AbstractSource string  `json:"AbstractSource"`
	RelatedTopics  []topic `json:"RelatedTopics"`
}

type topic struct {
	Text     string  `json:"Text"`
	FirstURL string  `json:"FirstURL"`
	Name     string  `json:"Name"`
	Topics   []topic `json:"Topics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	const op = "DuckDuckGo.Search"

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query is required", nil)
	}
	if limit <= 0 {
		limit = 5
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "web search is unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "web search is unavailable", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, utils.E(utils.CodeUnavailable, op, "web search is unavailable",
			fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var ia instantAnswer
	if err := json.Unmarshal(body, &ia); err != nil {
		return nil, utils.E(utils.CodeUpstreamFailed, op, "failed to decode search response", err)
	}
	return ia.results(limit), nil
}

func (ia instantAnswer) results(limit int) []Result {
	out := make([]Result, 0, limit)
	if ia.AbstractText != "" {
		title := ia.Heading
		if ia.AbstractSource != "" {
			title = fmt.Sprintf("%s (%s)", ia.Heading, ia.AbstractSource)
		}
		out = append(out, Result{Title: title, URL: ia.AbstractURL, Snippet: ia.AbstractText})
	}

	var walk func([]topic)
	walk = func(ts []topic) {
		for _, t := range ts {
			if len(out) >= limit {
				return
			}
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			if t.Text == "" {
				continue
			}
			title, snippet := t.Text, ""
			if i := strings.Index(t.Text, " - "); i > 0 {
				title, snippet = t.Text[:i], t.Text[i+3:]
			}
			out = append(out, Result{Title: title, URL: t.FirstURL, Snippet: snippet})
		}
	}
	walk(ia.RelatedTopics)

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

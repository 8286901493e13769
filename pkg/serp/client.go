package serp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/atlas-specialty/underwrite-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://serpapi.com"
	defaultNum     = 5
)

// Client performs web and news searches against a SerpAPI-compatible
// endpoint. It is the source of external company signals for risk
// assessment.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes a single search.
type SearchRequest struct {
	Query string
	News  bool // restrict to news results
	Num   int  // max results; 0 means the client default
}

// SearchResponse is the decoded subset of a search response we consume.
type SearchResponse struct {
	OrganicResults []OrganicResult `json:"organic_results"`
	NewsResults    []NewsResult    `json:"news_results"`
}

// OrganicResult is a single web search hit.
type OrganicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// NewsResult is a single news search hit.
type NewsResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Date    string `json:"date"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default requests-per-second limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithDefaultNum overrides the default result count.
func WithDefaultNum(n int) Option {
	return func(c *httpClient) {
		c.num = n
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	num     int
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates a SerpAPI search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		num:     defaultNum,
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "serp: rate limit wait")
	}

	num := req.Num
	if num <= 0 {
		num = c.num
	}

	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("engine", "google")
	q.Set("num", strconv.Itoa(num))
	q.Set("api_key", c.apiKey)
	if req.News {
		q.Set("tbm", "nws")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serp: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "serp: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("serp: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "serp: unmarshal response")
	}

	return &result, nil
}

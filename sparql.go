package ecoregions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the public Wikidata Query Service.
const DefaultEndpoint = "https://query.wikidata.org/sparql"

// DefaultUserAgent identifies this tool to the query service, which rejects
// requests without a descriptive agent.
const DefaultUserAgent = "ecoregions-refcache/1.0 (https://github.com/andreiashu/ecoregions)"

// sparqlResultsMediaType is the JSON serialization of SPARQL SELECT results.
const sparqlResultsMediaType = "application/sparql-results+json"

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// defaultHTTPClient is shared by clients that are not given one. Wikidata
// aborts queries after 60s, so the timeout leaves room for the transfer.
var defaultHTTPClient = &http.Client{
	Timeout: 90 * time.Second,
}

// Term is one bound RDF term in a result row.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Binding is one result row keyed by variable name. Unbound variables are
// absent.
type Binding map[string]Term

// Value returns the lexical value of a variable, or "" when unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}

// SPARQLResults is the decoded body of a SELECT query.
type SPARQLResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// Querier runs SELECT queries. SPARQLClient is the network implementation.
type Querier interface {
	Query(ctx context.Context, query string) (*SPARQLResults, error)
}

// SPARQLClient talks to a SPARQL 1.1 protocol endpoint over HTTP GET.
type SPARQLClient struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures a SPARQLClient.
type ClientOption func(*SPARQLClient)

// WithClientHTTPClient sets the HTTP client used for queries.
func WithClientHTTPClient(hc *http.Client) ClientOption {
	return func(c *SPARQLClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClientUserAgent sets the User-Agent header sent with every query.
func WithClientUserAgent(ua string) ClientOption {
	return func(c *SPARQLClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewSPARQLClient returns a client for endpoint. An empty endpoint selects
// DefaultEndpoint.
func NewSPARQLClient(endpoint string, opts ...ClientOption) *SPARQLClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &SPARQLClient{
		endpoint:   endpoint,
		httpClient: defaultHTTPClient,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint URL the client queries.
func (c *SPARQLClient) Endpoint() string {
	return c.endpoint
}

// Query runs a SELECT query and decodes the JSON result set.
// There is no retry: transport errors and non-200 responses are returned.
func (c *SPARQLClient) Query(ctx context.Context, query string) (*SPARQLResults, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint %q: %w", c.endpoint, err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", sparqlResultsMediaType)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("HTTP GET %s: status %d: %s", c.endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res SPARQLResults
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding SPARQL results: %w", err)
	}
	return &res, nil
}

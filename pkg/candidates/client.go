// Package candidates retrieves candidate records from remote fuzzy-match and structured query services
package candidates

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/retry"
)

var (
	// ErrMalformedResponse is a response body that could not be parsed; it is retried
	ErrMalformedResponse = errors.New("malformed candidate response")
	// ErrInvalidResponse is a parsed response without the expected structure; it is not retried
	ErrInvalidResponse = errors.New("invalid candidate response")
	// ErrNotConfigured is returned when a call targets an endpoint without a URL
	ErrNotConfigured = errors.New("candidate endpoint not configured")
)

// Endpoint is one remote service with its call-site retry settings
type Endpoint struct {
	URL           string        `yaml:"url"`
	RetryBudget   int           `yaml:"retry_budget" validate:"gte=0,lte=100"`
	RetryInterval time.Duration `yaml:"retry_interval" validate:"gte=0"`
}

// Config holds the remote candidate client configuration
type Config struct {
	// Service labels logs and metrics
	Service    string
	Candidates Endpoint
	Structured Endpoint
	// ResultsPath is a JMESPath expression locating the result list in a candidate response
	ResultsPath string
	// StructuredIDVar names the binding that identifies a structured query row
	StructuredIDVar string
	// BatchSize bounds the number of literals per grouped structured query
	BatchSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns defaults for a service; retry settings are filled per call site
func DefaultConfig(service string) Config {
	return Config{
		Service:         service,
		Candidates:      Endpoint{RetryBudget: 10, RetryInterval: 6 * time.Second},
		Structured:      Endpoint{RetryBudget: 10, RetryInterval: 6 * time.Second},
		ResultsPath:     "results",
		StructuredIDVar: "sub",
		BatchSize:       200,
		CacheTTL:        24 * time.Hour,
	}
}

// Client is the remote candidate client. Retry state lives on the stack of each call,
// so one client may be shared by concurrent record resolutions.
type Client struct {
	http        *httpclient.Client
	cache       Cache
	logger      ectologger.Logger
	cfg         Config
	resultsPath *jmespath.JMESPath
}

// NewClient creates a client. cache may be nil.
func NewClient(cfg Config, httpClient *httpclient.Client, cache Cache, logger ectologger.Logger) (*Client, error) {
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = "results"
	}
	if cfg.StructuredIDVar == "" {
		cfg.StructuredIDVar = "sub"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}

	path, err := jmespath.Compile(cfg.ResultsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid results path %q", cfg.ResultsPath)
	}

	return &Client{
		http:        httpClient,
		cache:       cache,
		logger:      logger,
		cfg:         cfg,
		resultsPath: path,
	}, nil
}

// Query asks the candidate service for records similar to text.
// Zero results is a valid answer and is returned without error.
func (c *Client) Query(ctx context.Context, text string) ([]models.CandidateRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "candidates.Client.Query")
	defer span.End()

	return c.call(ctx, "query", c.cfg.Candidates, text, "application/json", c.decodeCandidates)
}

// QueryStructured runs a structured query and returns one candidate per result row
func (c *Client) QueryStructured(ctx context.Context, query string) ([]models.CandidateRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "candidates.Client.QueryStructured")
	defer span.End()

	return c.call(ctx, "structured", c.cfg.Structured, query, "application/sparql-results+json", c.decodeBindings)
}

type decodeFunc func(ctx context.Context, body []byte) ([]models.CandidateRecord, error)

func (c *Client) call(ctx context.Context, kind string, endpoint Endpoint, query, accept string, decode decodeFunc) ([]models.CandidateRecord, error) {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"service": c.cfg.Service,
		"kind":    kind,
	})

	if endpoint.URL == "" {
		return nil, errors.Wrapf(ErrNotConfigured, "%s %s", c.cfg.Service, kind)
	}

	key := cacheKey(kind, endpoint.URL, query)
	if records, ok := c.lookup(ctx, key); ok {
		return records, nil
	}

	policy := retry.Policy{
		Budget:      endpoint.RetryBudget,
		Interval:    endpoint.RetryInterval,
		IsRetryable: IsRetryable,
		OnRetry: func(attempt int, err error) {
			metrics.RemoteRetriesTotal.WithLabelValues(c.cfg.Service).Inc()
			log.WithError(err).Warnf("Candidate request attempt %d failed, retrying in %s", attempt, endpoint.RetryInterval)
		},
	}

	records, err := retry.DoValue(ctx, policy, func(ctx context.Context, _ int) ([]models.CandidateRecord, error) {
		resp, err := c.http.PostForm(ctx, endpoint.URL, url.Values{"query": {query}}, accept)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, httperror.NewHTTPErrorf(resp.StatusCode, "%s returned status %d", c.cfg.Service, resp.StatusCode)
		}
		return decode(ctx, resp.Body)
	})
	if err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			metrics.RemoteBudgetExhaustedTotal.WithLabelValues(c.cfg.Service).Inc()
			log.WithError(err).Error("Candidate request exhausted its retry budget")
		}
		return nil, err
	}

	log.WithField("count", len(records)).Debug("Received candidates")
	c.store(ctx, key, records)
	return records, nil
}

// IsRetryable reports whether a call failure is transient: transport errors,
// unparseable bodies and 5xx statuses. 4xx and structurally invalid responses are final.
func IsRetryable(err error) bool {
	var transportErr *httpclient.TransportError
	switch {
	case errors.As(err, &transportErr):
		return true
	case errors.Is(err, ErrMalformedResponse):
		return true
	case errors.Is(err, ErrInvalidResponse):
		return false
	case httperror.IsHTTPError(err):
		return httperror.GetStatusCode(err) >= http.StatusInternalServerError
	default:
		return false
	}
}

func (c *Client) decodeCandidates(ctx context.Context, body []byte) ([]models.CandidateRecord, error) {
	data, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}

	found, err := c.resultsPath.Search(data)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if found == nil {
		return nil, errors.Wrapf(ErrInvalidResponse, "no value at %q", c.cfg.ResultsPath)
	}
	items, ok := found.([]any)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidResponse, "%q is %T, not a list", c.cfg.ResultsPath, found)
	}

	records := make([]models.CandidateRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidResponse, "result item is %T, not an object", item)
		}
		id := stringify(obj["id"])
		if id == "" {
			c.logger.WithContext(ctx).WithField("service", c.cfg.Service).Warn("Skipping candidate without id")
			continue
		}

		record := models.CandidateRecord{ID: id, Properties: map[string][]string{}}
		if props, ok := obj["properties"].(map[string]any); ok {
			for name, value := range props {
				if values := stringList(value); len(values) > 0 {
					record.Properties[name] = values
				}
			}
		}
		if score, ok := obj["score"].(float64); ok {
			record.Score = score
		}
		records = append(records, record)
	}

	return records, nil
}

func decodeJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.Wrap(ErrMalformedResponse, "empty body")
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return data, nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := stringify(t); s != "" {
			return []string{s}
		}
		return nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func cacheKey(kind, endpoint, query string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + endpoint + "\x00" + query))
	return kind + ":" + hex.EncodeToString(sum[:])
}

func (c *Client) lookup(ctx context.Context, key string) ([]models.CandidateRecord, bool) {
	if c.cache == nil {
		return nil, false
	}
	records, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Candidate cache lookup failed")
		return nil, false
	}
	return records, ok
}

func (c *Client) store(ctx context.Context, key string, records []models.CandidateRecord) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, records, c.cfg.CacheTTL); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Candidate cache store failed")
	}
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

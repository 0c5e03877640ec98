package wall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4096
)

// Transport performs single HTTP attempts against the wall API. It never retries;
// retries and rate limiting belong to the client that wraps it.
type Transport struct {
	baseURL    string
	version    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// TransportOption configures the Transport.
type TransportOption func(*Transport)

// WithHTTPClient sets a custom HTTP client. The access token is not applied to it.
func WithHTTPClient(httpClient *http.Client) TransportOption {
	return func(t *Transport) {
		t.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates a transport from the [source] config section. A configured access
// token is sent as a bearer token through an oauth2 static token source.
func NewTransport(cfg common.SourceConfig, opts ...TransportOption) *Transport {
	timeout := common.ParseDurationOr(cfg.Timeout, DefaultTimeout)

	base := &http.Client{Timeout: timeout}
	httpClient := base
	if cfg.AccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = timeout
	}

	t := &Transport{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.APIVersion,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = arbor.NewNoOpLogger()
	}
	return t
}

// Do issues one GET for operation and returns the unwrapped "response" payload
func (t *Transport) Do(ctx context.Context, operation string, params url.Values) (json.RawMessage, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	if t.version != "" {
		query.Set("v", t.version)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", t.baseURL, operation, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	t.logger.Trace().
		Str("operation", operation).
		Str("offset", query.Get("offset")).
		Msg("Wall API request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Operation:  operation,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, malformed(operation, err)
	}
	if env.Error != nil {
		env.Error.Operation = operation
		return nil, env.Error
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return nil, malformed(operation, fmt.Errorf("missing response field"))
	}

	return env.Response, nil
}

// malformed tags a body decode failure as permanent. Decoder errors such as
// io.ErrUnexpectedEOF would otherwise look like a dropped connection.
func malformed(operation string, err error) error {
	return models.NewPermanentError(operation, 0, "malformed response", &DecodeError{Operation: operation, Err: err})
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Package gateway is the authenticated client of the remote HR backend. It
// normalizes response envelopes, works around stale conditional responses
// and publishes lifecycle events for successful mutations.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/config"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"github.com/erp/rostersync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a backend response is read
const maxBodyBytes = 8 << 20

// Op is a mutation operation
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// category maps o to the lifecycle category it publishes. ok is false for
// an unknown operation.
func (o Op) category() (shared.Category, bool) {
	switch o {
	case OpCreate:
		return shared.CategoryCreated, true
	case OpUpdate:
		return shared.CategoryUpdated, true
	case OpDelete:
		return shared.CategoryDeleted, true
	}
	return "", false
}

// method is the HTTP method o is sent with
func (o Op) method() string {
	switch o {
	case OpCreate:
		return http.MethodPost
	case OpUpdate:
		return http.MethodPut
	case OpDelete:
		return http.MethodDelete
	}
	return ""
}

// TokenSource supplies the bearer token of the current session
type TokenSource interface {
	Token() (string, bool)
	Ready() <-chan struct{}
}

// MutationError is returned when the backend answers a mutation with an
// error status. It matches shared.ErrMutationRejected with errors.Is.
type MutationError struct {
	Op      Op
	Kind    shared.EntityKind
	Status  int
	Message string
}

func (e *MutationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s rejected with status %d", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s %s rejected with status %d: %s", e.Op, e.Kind, e.Status, e.Message)
}

// Is matches shared.ErrMutationRejected
func (e *MutationError) Is(target error) bool {
	return errors.Is(shared.ErrMutationRejected, target)
}

// Gateway is the sole reader and writer of backend entities
type Gateway struct {
	baseURL   *url.URL
	client    *http.Client
	tokens    TokenSource
	publisher shared.EventPublisher
	cache     *cacheTable
	logger    *zap.Logger
	metrics   *telemetry.SyncMetrics
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Gateway
type Option func(*Gateway)

// WithHTTPClient replaces the default client. Its timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithPublisher sets where mutation events are published
func WithPublisher(p shared.EventPublisher) Option {
	return func(g *Gateway) { g.publisher = p }
}

// WithMetrics records request and fallback counters
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) { g.tracer = tp.Tracer("rostersync/gateway") }
}

// New creates a gateway. It may be built before the session authenticates;
// calls made before then fail with shared.ErrUnauthenticated.
func New(cfg config.GatewayConfig, tokens TokenSource, log *zap.Logger, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g := &Gateway{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		cache:   newCacheTable(),
		logger:  log.Named("gateway"),
		tracer:  otel.Tracer("rostersync/gateway"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Ready is closed once the session has authenticated
func (g *Gateway) Ready() <-chan struct{} {
	return g.tokens.Ready()
}

// WaitReady blocks until the session authenticates or ctx ends
func (g *Gateway) WaitReady(ctx context.Context) error {
	select {
	case <-g.tokens.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cached returns the cache entry for kind
func (g *Gateway) Cached(kind shared.EntityKind) (CacheEntry, bool) {
	return g.cache.get(kind)
}

type fetchOptions struct {
	force bool
	query url.Values
}

// FetchOption configures a collection read
type FetchOption func(*fetchOptions)

// Force requires fresh data: a not-modified answer triggers a bypass request
func Force() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// WithQuery adds query parameters to the collection request
func WithQuery(q url.Values) FetchOption {
	return func(o *fetchOptions) { o.query = q }
}

// FetchCollection returns the records of kind in backend order. Read failures
// degrade to the cached records, or an empty slice; only a missing or
// rejected session is returned as an error.
func (g *Gateway) FetchCollection(ctx context.Context, kind shared.EntityKind, opts ...FetchOption) ([]json.RawMessage, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	token, ok := g.tokens.Token()
	if !ok {
		return nil, shared.ErrUnauthenticated
	}
	log := logger.WithLogger(ctx, g.logger).With(zap.String("kind", string(kind)), zap.Bool("force", o.force))

	started := g.now()
	cached, hasCache := g.cache.get(kind)

	headers := http.Header{}
	if hasCache && cached.ETag != "" && !cached.Invalidated {
		headers.Set("If-None-Match", cached.ETag)
	}
	resp, err := g.do(ctx, "fetch_collection", http.MethodGet, g.endpoint(kind, "", o.query), token, headers, nil)
	if err != nil {
		log.Warn("Collection read failed, serving cached data", zap.Error(err))
		return g.fallback(ctx, kind, "network"), nil
	}

	switch {
	case resp.status == http.StatusUnauthorized:
		return nil, shared.ErrUnauthenticated
	case resp.status == http.StatusNotModified:
		if hasCache && !o.force {
			return cached.Records, nil
		}
		log.Info("Not-modified answer to a fresh read, retrying without cache")
		return g.bypass(ctx, kind, token, o.query, log)
	case resp.status >= 200 && resp.status < 300:
		return g.store(ctx, kind, resp, started, log), nil
	default:
		log.Warn("Collection read rejected, serving cached data", zap.Int("status", resp.status))
		return g.fallback(ctx, kind, "status_"+strconv.Itoa(resp.status)), nil
	}
}

// bypass re-reads a collection with every cache layer disabled
func (g *Gateway) bypass(ctx context.Context, kind shared.EntityKind, token string, query url.Values, log *logger.ContextLogger) ([]json.RawMessage, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("_ts", strconv.FormatInt(g.now().UnixNano(), 10))

	headers := http.Header{}
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Pragma", "no-cache")

	started := g.now()
	resp, err := g.do(ctx, "fetch_collection_bypass", http.MethodGet, g.endpoint(kind, "", q), token, headers, nil)
	if err != nil {
		log.Warn("Bypass read failed, serving cached data", zap.Error(err))
		return g.fallback(ctx, kind, "bypass_network"), nil
	}
	switch {
	case resp.status == http.StatusUnauthorized:
		return nil, shared.ErrUnauthenticated
	case resp.status >= 200 && resp.status < 300:
		return g.store(ctx, kind, resp, started, log), nil
	default:
		log.Warn("Bypass read did not return data, serving cached data", zap.Int("status", resp.status))
		return g.fallback(ctx, kind, "bypass_status_"+strconv.Itoa(resp.status)), nil
	}
}

func (g *Gateway) store(ctx context.Context, kind shared.EntityKind, resp *response, started time.Time, log *logger.ContextLogger) []json.RawMessage {
	records, shape := NormalizeCollection(resp.body, string(kind))
	if shape == ShapeUnrecognized {
		log.Warn("Unrecognized collection envelope, treating as empty",
			zap.Error(shared.ErrUnrecognizedResponseShape),
			zap.Int("body_bytes", len(resp.body)))
		g.metrics.GatewayFallback(ctx, string(kind), "unrecognized_shape")
	} else {
		log.Debug("Collection normalized", zap.String("shape", string(shape)), zap.Int("records", len(records)))
	}

	current, won := g.cache.put(CacheEntry{
		Kind:      kind,
		Records:   records,
		FetchedAt: started,
		ETag:      resp.header.Get("ETag"),
	})
	if !won {
		log.Debug("Discarded response older than cached entry", zap.Time("cached_at", current.FetchedAt))
	}
	return current.Records
}

func (g *Gateway) fallback(ctx context.Context, kind shared.EntityKind, reason string) []json.RawMessage {
	g.metrics.GatewayFallback(ctx, string(kind), reason)
	if cached, ok := g.cache.get(kind); ok {
		return cached.Records
	}
	return []json.RawMessage{}
}

// FetchOne returns one record. When the backend is unreachable the cached
// collection is searched before failing with shared.ErrNetworkFailure.
func (g *Gateway) FetchOne(ctx context.Context, kind shared.EntityKind, id string) (json.RawMessage, error) {
	token, ok := g.tokens.Token()
	if !ok {
		return nil, shared.ErrUnauthenticated
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", shared.ErrInvalidInput)
	}
	log := logger.WithLogger(ctx, g.logger).With(zap.String("kind", string(kind)), zap.String("id", id))

	resp, err := g.do(ctx, "fetch_one", http.MethodGet, g.endpoint(kind, id, nil), token, nil, nil)
	if err == nil {
		switch {
		case resp.status == http.StatusUnauthorized:
			return nil, shared.ErrUnauthenticated
		case resp.status == http.StatusNotFound:
			return nil, shared.ErrNotFound
		case resp.status >= 200 && resp.status < 300:
			if rec, _, ok := NormalizeOne(resp.body, string(kind)); ok {
				return rec, nil
			}
			log.Warn("Unrecognized entity envelope", zap.Error(shared.ErrUnrecognizedResponseShape))
		default:
			err = fmt.Errorf("status %d", resp.status)
		}
	}
	if err != nil {
		log.Warn("Entity read failed, searching cached collection", zap.Error(err))
	}

	if cached, ok := g.cache.get(kind); ok {
		if rec, ok := cached.Find(id); ok {
			g.metrics.GatewayFallback(ctx, string(kind), "cached_record")
			return rec, nil
		}
	}
	return nil, fmt.Errorf("fetch %s/%s: %w", kind, id, shared.ErrNetworkFailure)
}

// Mutate applies op to the backend. On success the kind's cache entry is
// invalidated and a lifecycle event carrying the post-mutation record is
// published. Failures publish nothing.
func (g *Gateway) Mutate(ctx context.Context, kind shared.EntityKind, op Op, id string, payload any) (json.RawMessage, error) {
	category, known := op.category()
	if !known {
		return nil, fmt.Errorf("%w: unknown operation %q", shared.ErrInvalidInput, op)
	}
	token, ok := g.tokens.Token()
	if !ok {
		return nil, shared.ErrUnauthenticated
	}
	if op != OpCreate && id == "" {
		return nil, fmt.Errorf("%w: %s requires an id", shared.ErrInvalidInput, op)
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
	}

	method := op.method()
	log := logger.WithLogger(ctx, g.logger).With(
		zap.String("kind", string(kind)), zap.String("op", string(op)), zap.String("id", id))

	resp, err := g.do(ctx, "mutate_"+string(op), method, g.endpoint(kind, id, nil), token, nil, body)
	if err != nil {
		log.Warn("Mutation failed", zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", op, kind, shared.ErrNetworkFailure)
	}
	if resp.status == http.StatusUnauthorized {
		return nil, shared.ErrUnauthenticated
	}
	if resp.status < 200 || resp.status >= 300 {
		mErr := &MutationError{Op: op, Kind: kind, Status: resp.status, Message: errorMessage(resp.body)}
		log.Warn("Mutation rejected", zap.Error(mErr))
		return nil, mErr
	}

	record := g.postMutationRecord(kind, op, id, resp.body, body)
	g.cache.invalidate(kind)

	if g.publisher != nil {
		event, err := shared.NewSyncEvent(category, kind, record)
		if err == nil {
			err = g.publisher.Publish(ctx, event)
		}
		if err != nil {
			log.Error("Failed to publish mutation event", zap.Error(err))
		}
	}
	return record, nil
}

// postMutationRecord picks the payload describing the entity after op: the
// id-bearing record of the response, else the cached record for a delete,
// else the request body with the id merged in.
func (g *Gateway) postMutationRecord(kind shared.EntityKind, op Op, id string, respBody, reqBody []byte) json.RawMessage {
	if rec, _, ok := NormalizeOne(respBody, string(kind)); ok {
		return rec
	}
	if op == OpDelete {
		if cached, ok := g.cache.get(kind); ok {
			if rec, ok := cached.Find(id); ok {
				return rec
			}
		}
	}
	if op != OpDelete && len(reqBody) > 0 {
		if id == "" {
			return reqBody
		}
		var fields map[string]any
		if json.Unmarshal(reqBody, &fields) == nil {
			fields["id"] = id
			if merged, err := json.Marshal(fields); err == nil {
				return merged
			}
		}
	}
	ref, _ := json.Marshal(map[string]string{"id": id})
	return ref
}

func (g *Gateway) endpoint(kind shared.EntityKind, id string, query url.Values) string {
	u := *g.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + url.PathEscape(string(kind))
	if id != "" {
		u.Path += "/" + url.PathEscape(id)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do performs one backend request inside a client span
func (g *Gateway) do(ctx context.Context, op, method, target, token string, headers http.Header, body []byte) (*response, error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		))
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.GatewayRequest(ctx, op, 0, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	g.metrics.GatewayRequest(ctx, op, resp.StatusCode, time.Since(started))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

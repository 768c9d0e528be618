// Package dispatcher builds and executes the outbound HTTP request for one
// MCP tools/call: separating arguments into path/query/header/body,
// applying the operation's auth scheme, and mapping the response — see
// spec.md §4.6.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpvault/mcpvault/internal/circuitbreaker"
	"github.com/mcpvault/mcpvault/internal/health"
	"github.com/mcpvault/mcpvault/internal/metrics"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

const (
	defaultTimeout    = 30 * time.Second
	maxResponseBytes  = 10 << 20 // 10 MiB
)

// Request is everything the dispatcher needs to build and issue one
// outbound call.
type Request struct {
	Operation      wallet.OperationDescriptor
	IntegrationKey string
	Arguments      map[string]any
	// Credential is the decrypted secret bytes for this call, owned by the
	// caller's sealed container; the dispatcher never retains a reference
	// past Dispatch's return and zeroes its byte-slice working copy. The
	// string copies applyAuth makes for the header or query value are not
	// zeroed.
	Credential []byte
}

// Result is the outbound call's outcome when the upstream responded at
// all (including non-2xx — that is reported via an ErrUpstreamStatus, not
// folded into Result, so the caller can route MCP isError wrapping
// consistently through the error path).
type Result struct {
	StatusCode int
	Body       []byte
	Truncated  bool
}

// Dispatcher issues outbound HTTP calls with per-integration circuit
// breaking and health tracking.
type Dispatcher struct {
	client  *http.Client
	tracker *health.Tracker
	metrics *metrics.Registry

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.Breaker
}

// Option configures optional Dispatcher behaviour.
type Option func(*Dispatcher)

// WithMetrics attaches a metrics.Registry so every integration's circuit
// breaker reports its state (mcpvault_circuit_state) and trip count
// (mcpvault_circuit_trips_total) as the breaker created for it transitions.
func WithMetrics(m *metrics.Registry) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher. tracker may be nil to disable health
// recording.
func New(tracker *health.Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:   &http.Client{Timeout: defaultTimeout},
		tracker:  tracker,
		breakers: make(map[string]*circuitbreaker.Breaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) breakerFor(integrationKey string) *circuitbreaker.Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[integrationKey]
	if !ok {
		var breakerOpts []circuitbreaker.Option
		if d.metrics != nil {
			breakerOpts = append(breakerOpts, circuitbreaker.WithOnStateChange(func(from, to circuitbreaker.State) {
				d.metrics.CircuitState.WithLabelValues(integrationKey).Set(float64(to))
				if to == circuitbreaker.Open {
					d.metrics.CircuitTrips.WithLabelValues(integrationKey).Inc()
				}
			}))
		}
		b = circuitbreaker.New(breakerOpts...)
		d.breakers[integrationKey] = b
	}
	return b
}

// Dispatch builds the outbound request from req and executes it. No
// retries happen at this layer — the AI caller is expected to retry
// semantically, per spec.md §4.6.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	breaker := d.breakerFor(req.IntegrationKey)
	if !breaker.Allow() {
		return nil, &ErrUpstreamStatus{Code: 0, Body: "circuit open"}
	}

	start := time.Now()
	result, err := d.doDispatch(ctx, req)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		breaker.RecordFailure()
		if d.tracker != nil {
			d.tracker.RecordFailure(req.IntegrationKey, err.Error())
		}
		return nil, err
	}

	breaker.RecordSuccess()
	if d.tracker != nil {
		d.tracker.RecordSuccess(req.IntegrationKey, latencyMs)
	}
	return result, nil
}

func (d *Dispatcher) doDispatch(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otel.Tracer("mcpvault.dispatcher").Start(ctx, "dispatcher.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mcpvault.integration_key", req.IntegrationKey),
			attribute.String("mcpvault.tool_name", req.Operation.ToolName),
		),
	)
	defer span.End()

	pathParams, queryParams, headerParams, bodyValue, err := separateArguments(req.Operation, req.Arguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad arguments")
		return nil, err
	}

	outURL, err := buildURL(req.Operation, pathParams, queryParams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad integration")
		return nil, err
	}

	var bodyReader io.Reader
	if bodyValue != nil {
		encoded, err := json.Marshal(bodyValue)
		if err != nil {
			return nil, &ErrBadArguments{Detail: "body: " + err.Error()}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Operation.Method, outURL, bodyReader)
	if err != nil {
		span.RecordError(err)
		return nil, &ErrTransport{Detail: err.Error()}
	}
	if bodyValue != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headerParams {
		httpReq.Header.Set(name, value)
	}

	credCopy := append([]byte(nil), req.Credential...)
	defer zeroBytes(credCopy)
	if err := applyAuth(httpReq, req.Operation.Auth, credCopy, queryParams); err != nil {
		return nil, err
	}
	if len(queryParams) > 0 {
		httpReq.URL.RawQuery = encodeQuery(queryParams)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := d.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		if isTimeout(err) {
			return nil, &ErrTimeout{Detail: err.Error()}
		}
		return nil, &ErrTransport{Detail: err.Error()}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		span.RecordError(err)
		return nil, &ErrTransport{Detail: "read response: " + err.Error()}
	}

	truncated := false
	if len(body) > maxResponseBytes {
		body = body[:maxResponseBytes]
		truncated = true
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		return nil, &ErrUpstreamStatus{Code: resp.StatusCode, Body: string(body)}
	}

	span.SetStatus(codes.Ok, "")
	return &Result{StatusCode: resp.StatusCode, Body: body, Truncated: truncated}, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "context deadline exceeded")
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// separateArguments splits arguments into path, query, header, and body
// values per the operation's parameter metadata, failing BadArguments on
// any missing required parameter.
func separateArguments(op wallet.OperationDescriptor, args map[string]any) (path, query, header map[string]string, body any, err error) {
	path = map[string]string{}
	query = map[string]string{}
	header = map[string]string{}

	for _, p := range op.Parameters {
		if p.Location == wallet.ParamBody {
			v, ok := args["body"]
			if !ok {
				if p.Required {
					return nil, nil, nil, nil, &ErrBadArguments{Detail: "missing required body"}
				}
				continue
			}
			body = v
			continue
		}

		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return nil, nil, nil, nil, &ErrBadArguments{Detail: "missing required parameter " + p.Name}
			}
			continue
		}
		s := fmt.Sprintf("%v", v)
		switch p.Location {
		case wallet.ParamPath:
			path[p.Name] = s
		case wallet.ParamQuery:
			query[p.Name] = s
		case wallet.ParamHeader:
			header[p.Name] = s
		}
	}

	return path, query, header, body, nil
}

// buildURL substitutes {name} placeholders in the path template with
// URL-encoded values and joins it to the operation's base URL.
func buildURL(op wallet.OperationDescriptor, pathParams, queryParams map[string]string) (string, error) {
	if op.BaseURL == "" || !strings.HasPrefix(op.BaseURL, "http") {
		return "", &ErrBadIntegration{Detail: "base URL is empty or relative"}
	}

	path := op.PathTemplate
	for name, value := range pathParams {
		placeholder := "{" + name + "}"
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	if strings.Contains(path, "{") {
		return "", &ErrBadArguments{Detail: "unsubstituted path placeholder in " + path}
	}

	base := strings.TrimRight(op.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}

func encodeQuery(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}

// applyAuth injects the operation's configured auth scheme into the
// outbound request. queryAuth receives apiKey-query additions so the
// caller can fold them into the final RawQuery alongside ordinary query
// parameters.
func applyAuth(req *http.Request, spec wallet.AuthSpec, credential []byte, queryAuth map[string]string) error {
	switch spec.Scheme {
	case wallet.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+string(credential))
	case wallet.AuthAPIKeyHdr:
		req.Header.Set(spec.HeaderName, string(credential))
	case wallet.AuthAPIKeyQuery:
		queryAuth[spec.QueryName] = string(credential)
	case wallet.AuthBasic:
		// credential is expected to already be "user:pass"; base64-encode
		// it for the Authorization header.
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString(credential))
	case wallet.AuthNone:
		// nothing to inject
	}
	return nil
}

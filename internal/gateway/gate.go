// Package gateway decides whether a request may use a client API key.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marunose/internal/db"
	"marunose/internal/github"
	"marunose/internal/logger"
	"marunose/internal/model"
	"marunose/internal/ratelimit"
	"marunose/internal/security"
)

const (
	EndpointValidate  = "validate"
	EndpointSummarize = "summarize"

	serviceName = "github-summarize"
)

// KeyStore is the part of db.Service the gate reads and writes.
type KeyStore interface {
	GetAllKeys(ctx context.Context) ([]model.APIKey, error)
	IncrementUsage(ctx context.Context, id string) (int, error)
}

type RateLimiter interface {
	Check(identifier string, maxRequests int, window time.Duration) ratelimit.Result
}

type EventLogger interface {
	Log(e security.Event)
}

type OutcomeRecorder interface {
	RecordGateOutcome(endpoint, outcome string)
}

type Limits struct {
	MaxRequests int
	Window      time.Duration
}

type Config struct {
	Validate  Limits
	Summarize Limits
}

// DefaultConfig allows 5 validations and 10 summaries per IP every 15 minutes.
func DefaultConfig() Config {
	return Config{
		Validate:  Limits{MaxRequests: 5, Window: 15 * time.Minute},
		Summarize: Limits{MaxRequests: 10, Window: 15 * time.Minute},
	}
}

// Client identifies the caller for rate limiting and auditing.
type Client struct {
	IP        string
	UserAgent string
}

// Authorization is returned when a summarize request may proceed.
type Authorization struct {
	Key   model.APIKey
	Usage int
	URL   string
}

// Remaining is the quota left after this request.
func (a *Authorization) Remaining() int {
	return a.Key.MonthlyLimit - a.Usage
}

type Gate struct {
	store    KeyStore
	limiter  RateLimiter
	events   EventLogger
	recorder OutcomeRecorder
	cfg      Config
	log      *slog.Logger
}

func New(store KeyStore, limiter RateLimiter, events EventLogger, recorder OutcomeRecorder, cfg Config, log *slog.Logger) *Gate {
	if log == nil {
		log = logger.Discard()
	}
	return &Gate{
		store:    store,
		limiter:  limiter,
		events:   events,
		recorder: recorder,
		cfg:      cfg,
		log:      log,
	}
}

// ValidateKey checks that apiKey names an active key. It does not consume quota.
// apiKey is the raw decoded JSON value, so a non-string is reported as malformed.
func (g *Gate) ValidateKey(ctx context.Context, client Client, apiKey interface{}) (*model.APIKey, error) {
	if rl := g.limiter.Check(client.IP, g.cfg.Validate.MaxRequests, g.cfg.Validate.Window); !rl.Allowed {
		g.audit(security.EventRateLimitExceeded, client, map[string]interface{}{
			"resetTime": rl.ResetTime.UnixMilli(),
		})
		return nil, g.fail(EndpointValidate, "rate_limited", &Rejection{
			Kind:      ErrRateLimited,
			Message:   "Too many attempts. Please try again later.",
			ResetTime: rl.ResetTime,
		})
	}

	key, ok := apiKey.(string)
	if !ok || key == "" {
		g.audit(security.EventInvalidFormat, client, map[string]interface{}{
			"reason": "missing_or_invalid_type",
		})
		return nil, g.fail(EndpointValidate, "malformed", reject(ErrMalformedInput, "Invalid API key format"))
	}

	if !strings.HasPrefix(key, model.KeyPrefix) {
		g.audit(security.EventInvalidFormat, client, map[string]interface{}{
			"reason":    "invalid_prefix",
			"keyPrefix": logger.KeyPrefix(key),
		})
		return nil, g.fail(EndpointValidate, "malformed", reject(ErrMalformedInput, "Invalid API key format"))
	}

	found, err := g.lookup(ctx, key)
	if err != nil {
		return nil, g.internalFailure(EndpointValidate, client, err)
	}
	if found == nil {
		g.audit(security.EventAPIKeyValidation, client, map[string]interface{}{
			"success":   false,
			"keyPrefix": logger.KeyPrefix(key),
		})
		return nil, g.fail(EndpointValidate, "unauthorized", reject(ErrUnauthorized, "Invalid or inactive API key"))
	}

	g.audit(security.EventAPIKeyValidation, client, map[string]interface{}{
		"success":   true,
		"keyId":     found.ID,
		"keyPrefix": logger.KeyPrefix(key),
	})
	g.record(EndpointValidate, "authorized")
	return found, nil
}

// AuthorizeSummarize runs the full check chain for a summarize request and, on
// success, consumes one unit of the key's monthly quota.
func (g *Gate) AuthorizeSummarize(ctx context.Context, client Client, apiKey string, githubURL interface{}) (*Authorization, error) {
	if rl := g.limiter.Check(client.IP, g.cfg.Summarize.MaxRequests, g.cfg.Summarize.Window); !rl.Allowed {
		g.audit(security.EventRateLimitExceeded, client, map[string]interface{}{
			"service":   serviceName,
			"resetTime": rl.ResetTime.UnixMilli(),
		})
		return nil, g.fail(EndpointSummarize, "rate_limited", &Rejection{
			Kind:      ErrRateLimited,
			Message:   "Too many requests. Please try again later.",
			ResetTime: rl.ResetTime,
		})
	}

	if apiKey == "" {
		g.audit(security.EventInvalidFormat, client, map[string]interface{}{
			"reason":  "missing_api_key",
			"service": serviceName,
		})
		return nil, g.fail(EndpointSummarize, "malformed", reject(ErrMalformedInput, "API key is required"))
	}

	if !strings.HasPrefix(apiKey, model.KeyPrefix) {
		g.audit(security.EventInvalidFormat, client, map[string]interface{}{
			"reason":    "invalid_api_key_prefix",
			"keyPrefix": logger.KeyPrefix(apiKey),
			"service":   serviceName,
		})
		return nil, g.fail(EndpointSummarize, "malformed", reject(ErrMalformedInput, "Invalid API key format"))
	}

	url, ok := githubURL.(string)
	if !ok || url == "" {
		g.audit(security.EventInvalidFormat, client, map[string]interface{}{
			"reason":  "missing_github_url",
			"service": serviceName,
		})
		return nil, g.fail(EndpointSummarize, "malformed", reject(ErrMalformedInput, "GitHub URL is required"))
	}

	if !github.IsValidURL(url) {
		g.audit(security.EventInvalidFormat, client, map[string]interface{}{
			"reason":  "invalid_github_url",
			"url":     url,
			"service": serviceName,
		})
		return nil, g.fail(EndpointSummarize, "malformed", reject(ErrMalformedInput, "Invalid GitHub URL format"))
	}

	found, err := g.lookup(ctx, apiKey)
	if err != nil {
		return nil, g.internalFailure(EndpointSummarize, client, err)
	}
	if found == nil {
		g.audit(security.EventAPIKeyValidation, client, map[string]interface{}{
			"success":   false,
			"keyPrefix": logger.KeyPrefix(apiKey),
			"service":   serviceName,
		})
		return nil, g.fail(EndpointSummarize, "unauthorized", reject(ErrUnauthorized, "Invalid or inactive API key"))
	}

	if found.Usage >= found.MonthlyLimit {
		return nil, g.quotaExceeded(client, found)
	}

	usage, err := g.store.IncrementUsage(ctx, found.ID)
	if err != nil {
		if errors.Is(err, db.ErrQuotaExhausted) {
			return nil, g.quotaExceeded(client, found)
		}
		return nil, g.internalFailure(EndpointSummarize, client, fmt.Errorf("%w: %v", ErrUpstream, err))
	}

	g.audit(security.EventAPIKeyValidation, client, map[string]interface{}{
		"success":   true,
		"keyId":     found.ID,
		"githubUrl": url,
		"usage":     usage,
		"service":   serviceName,
	})
	g.record(EndpointSummarize, "authorized")
	return &Authorization{Key: *found, Usage: usage, URL: url}, nil
}

// ReportFailure audits an error raised after authorization and maps it to an internal error.
func (g *Gate) ReportFailure(endpoint string, client Client, err error) error {
	return g.internalFailure(endpoint, client, err)
}

// lookup scans every stored key for an exact match on the trimmed value.
// It returns nil when no active key matches.
func (g *Gate) lookup(ctx context.Context, candidate string) (*model.APIKey, error) {
	keys, err := g.store.GetAllKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load api keys: %v", ErrUpstream, err)
	}
	candidate = strings.TrimSpace(candidate)
	for i := range keys {
		if strings.TrimSpace(keys[i].Key) == candidate && keys[i].IsActive {
			return &keys[i], nil
		}
	}
	return nil, nil
}

func (g *Gate) quotaExceeded(client Client, key *model.APIKey) error {
	g.audit(security.EventAPIKeyValidation, client, map[string]interface{}{
		"success": false,
		"reason":  "usage_limit_exceeded",
		"keyId":   key.ID,
		"service": serviceName,
	})
	return g.fail(EndpointSummarize, "quota_exceeded", reject(ErrQuotaExceeded, "Monthly usage limit exceeded"))
}

func (g *Gate) internalFailure(endpoint string, client Client, err error) error {
	g.log.Error("Request gate failure", "endpoint", endpoint, "ip", client.IP, "error", err)
	details := map[string]interface{}{
		"success": false,
		"error":   "internal_server_error",
	}
	if endpoint == EndpointSummarize {
		details["service"] = serviceName
	}
	g.audit(security.EventAPIKeyValidation, client, details)
	g.record(endpoint, "internal_error")
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func (g *Gate) fail(endpoint, outcome string, err error) error {
	g.record(endpoint, outcome)
	return err
}

func (g *Gate) audit(t security.EventType, client Client, details map[string]interface{}) {
	if g.events == nil {
		return
	}
	g.events.Log(security.Event{
		Type:      t,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Details:   details,
	})
}

func (g *Gate) record(endpoint, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordGateOutcome(endpoint, outcome)
	}
}

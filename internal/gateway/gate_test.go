package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"marunose/internal/db"
	"marunose/internal/model"
	"marunose/internal/ratelimit"
	"marunose/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validKey = "marunose-abcdefghijklmnopqrstuvwxyz012345678"

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetAllKeys(ctx context.Context) ([]model.APIKey, error) {
	args := m.Called(ctx)
	keys, _ := args.Get(0).([]model.APIKey)
	return keys, args.Error(1)
}

func (m *mockStore) IncrementUsage(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

type outcomes map[string]int

func (o outcomes) RecordGateOutcome(endpoint, outcome string) { o[endpoint+":"+outcome]++ }

type fixture struct {
	gate     *Gate
	store    *mockStore
	events   *security.Logger
	outcomes outcomes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &mockStore{}
	events := security.NewLogger(nil)
	out := outcomes{}
	gate := New(store, ratelimit.New(), events, out, DefaultConfig(), nil)
	return &fixture{gate: gate, store: store, events: events, outcomes: out}
}

func activeKey(usage, limit int) model.APIKey {
	return model.APIKey{ID: "key-1", Name: "dev", Key: validKey, IsActive: true, Usage: usage, MonthlyLimit: limit}
}

func lastEvent(t *testing.T, l *security.Logger, ip string) security.Event {
	t.Helper()
	events := l.Events(ip)
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

var client = Client{IP: "203.0.113.7", UserAgent: "test-agent"}

func TestValidateKey_Success(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(0, 10)}, nil)

	key, err := f.gate.ValidateKey(context.Background(), client, "  "+validKey+"  ")
	require.Error(t, err, "untrimmed key fails the prefix check")
	assert.Nil(t, key)

	key, err = f.gate.ValidateKey(context.Background(), client, validKey)
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.ID)

	ev := lastEvent(t, f.events, client.IP)
	assert.Equal(t, security.EventAPIKeyValidation, ev.Type)
	assert.Equal(t, true, ev.Details["success"])
	assert.Equal(t, "test-agent", ev.UserAgent)
	assert.Equal(t, 1, f.outcomes["validate:authorized"])
	f.store.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

func TestValidateKey_TrailingWhitespaceMatches(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(0, 10)}, nil)

	key, err := f.gate.ValidateKey(context.Background(), client, validKey+"\n")
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.ID)
}

func TestValidateKey_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		input  interface{}
		reason string
	}{
		{name: "missing", input: nil, reason: "missing_or_invalid_type"},
		{name: "empty", input: "", reason: "missing_or_invalid_type"},
		{name: "number", input: 12345.0, reason: "missing_or_invalid_type"},
		{name: "wrong prefix", input: "sk-abcdefghijklmnop", reason: "invalid_prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.gate.ValidateKey(context.Background(), client, tt.input)

			assert.ErrorIs(t, err, ErrMalformedInput)
			assert.Equal(t, http.StatusBadRequest, StatusCode(err))
			assert.Equal(t, "Invalid API key format", PublicMessage(err))

			ev := lastEvent(t, f.events, client.IP)
			assert.Equal(t, security.EventInvalidFormat, ev.Type)
			assert.Equal(t, tt.reason, ev.Details["reason"])
			f.store.AssertNotCalled(t, "GetAllKeys", mock.Anything)
		})
	}
}

func TestValidateKey_PrefixLogged(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.ValidateKey(context.Background(), client, "sk-live-0123456789abcdef")
	require.Error(t, err)
	assert.Equal(t, "sk-live-01", lastEvent(t, f.events, client.IP).Details["keyPrefix"])
}

func TestValidateKey_UnknownOrInactive(t *testing.T) {
	inactive := activeKey(0, 10)
	inactive.IsActive = false

	f := newFixture(t)
	f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{inactive}, nil)

	_, err := f.gate.ValidateKey(context.Background(), client, validKey)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Equal(t, "Invalid or inactive API key", PublicMessage(err))

	_, err = f.gate.ValidateKey(context.Background(), client, "marunose-unknown")
	assert.ErrorIs(t, err, ErrUnauthorized)

	ev := lastEvent(t, f.events, client.IP)
	assert.Equal(t, false, ev.Details["success"])
}

func TestValidateKey_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetAllKeys", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := f.gate.ValidateKey(context.Background(), client, validKey)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.NotContains(t, PublicMessage(err), "connection refused")
	assert.Equal(t, "internal_server_error", lastEvent(t, f.events, client.IP).Details["error"])
}

func TestValidateKey_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(0, 10)}, nil)

	for i := 0; i < 5; i++ {
		_, err := f.gate.ValidateKey(context.Background(), client, validKey)
		require.NoError(t, err)
	}
	_, err := f.gate.ValidateKey(context.Background(), client, validKey)

	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, "Too many attempts. Please try again later.", rej.Message)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), rej.ResetTime, time.Minute)
	assert.Equal(t, security.EventRateLimitExceeded, lastEvent(t, f.events, client.IP).Type)

	// Another IP is unaffected.
	_, err = f.gate.ValidateKey(context.Background(), Client{IP: "198.51.100.1"}, validKey)
	assert.NoError(t, err)
}

func TestAuthorizeSummarize_Success(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(4, 10)}, nil)
	f.store.On("IncrementUsage", mock.Anything, "key-1").Return(5, nil)

	url := "https://github.com/octocat/Hello-World"
	auth, err := f.gate.AuthorizeSummarize(context.Background(), client, validKey, url)
	require.NoError(t, err)
	assert.Equal(t, 5, auth.Usage)
	assert.Equal(t, 5, auth.Remaining())
	assert.Equal(t, url, auth.URL)

	ev := lastEvent(t, f.events, client.IP)
	assert.Equal(t, 5, ev.Details["usage"])
	assert.Equal(t, url, ev.Details["githubUrl"])
	assert.Equal(t, "github-summarize", ev.Details["service"])
	f.store.AssertExpectations(t)
}

func TestAuthorizeSummarize_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		url     interface{}
		kind    error
		message string
		reason  string
	}{
		{name: "missing key", key: "", url: "https://github.com/o", kind: ErrMalformedInput, message: "API key is required", reason: "missing_api_key"},
		{name: "bad prefix", key: "sk-123", url: "https://github.com/o", kind: ErrMalformedInput, message: "Invalid API key format", reason: "invalid_api_key_prefix"},
		{name: "missing url", key: validKey, url: nil, kind: ErrMalformedInput, message: "GitHub URL is required", reason: "missing_github_url"},
		{name: "url not string", key: validKey, url: 42.0, kind: ErrMalformedInput, message: "GitHub URL is required", reason: "missing_github_url"},
		{name: "bad url", key: validKey, url: "https://gitlab.com/o/r", kind: ErrMalformedInput, message: "Invalid GitHub URL format", reason: "invalid_github_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.gate.AuthorizeSummarize(context.Background(), client, tt.key, tt.url)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.message, PublicMessage(err))
			assert.Equal(t, tt.reason, lastEvent(t, f.events, client.IP).Details["reason"])
			f.store.AssertNotCalled(t, "GetAllKeys", mock.Anything)
		})
	}
}

func TestAuthorizeSummarize_Quota(t *testing.T) {
	t.Run("exhausted before increment", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(10, 10)}, nil)

		_, err := f.gate.AuthorizeSummarize(context.Background(), client, validKey, "https://github.com/o/r")
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
		assert.Equal(t, "Monthly usage limit exceeded", PublicMessage(err))
		assert.Equal(t, "usage_limit_exceeded", lastEvent(t, f.events, client.IP).Details["reason"])
		assert.Equal(t, 1, f.outcomes["summarize:quota_exceeded"])
		f.store.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
	})

	t.Run("last unit allowed", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(9, 10)}, nil)
		f.store.On("IncrementUsage", mock.Anything, "key-1").Return(10, nil)

		auth, err := f.gate.AuthorizeSummarize(context.Background(), client, validKey, "https://github.com/o/r")
		require.NoError(t, err)
		assert.Equal(t, 0, auth.Remaining())
	})

	t.Run("lost race on increment", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(9, 10)}, nil)
		f.store.On("IncrementUsage", mock.Anything, "key-1").Return(0, db.ErrQuotaExhausted)

		_, err := f.gate.AuthorizeSummarize(context.Background(), client, validKey, "https://github.com/o/r")
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("increment failure", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetAllKeys", mock.Anything).Return([]model.APIKey{activeKey(1, 10)}, nil)
		f.store.On("IncrementUsage", mock.Anything, "key-1").Return(0, fmt.Errorf("disk full"))

		_, err := f.gate.AuthorizeSummarize(context.Background(), client, validKey, "https://github.com/o/r")
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	})
}

func TestAuthorizeSummarize_RateLimitedFirst(t *testing.T) {
	f := newFixture(t)
	f.gate.cfg.Summarize = Limits{MaxRequests: 1, Window: time.Minute}

	_, err := f.gate.AuthorizeSummarize(context.Background(), client, "", nil)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = f.gate.AuthorizeSummarize(context.Background(), client, "", nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "Too many requests. Please try again later.", PublicMessage(err))
}

func TestReportFailure(t *testing.T) {
	f := newFixture(t)
	err := f.gate.ReportFailure(EndpointSummarize, client, errors.New("panic in summarizer"))
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.Equal(t, 1, f.outcomes["summarize:internal_error"])
}

func TestStatusCodeNil(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusCode(nil))
}

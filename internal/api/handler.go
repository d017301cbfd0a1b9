// Package api serves the public gateway endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"marunose/internal/auth"
	"marunose/internal/gateway"
	"marunose/internal/logger"
	"marunose/internal/model"
	"marunose/internal/summarize"

	"github.com/gin-gonic/gin"
)

// Gate is satisfied by *gateway.Gate.
type Gate interface {
	ValidateKey(ctx context.Context, client gateway.Client, apiKey interface{}) (*model.APIKey, error)
	AuthorizeSummarize(ctx context.Context, client gateway.Client, apiKey string, githubURL interface{}) (*gateway.Authorization, error)
	ReportFailure(endpoint string, client gateway.Client, err error) error
}

// Summarizer is satisfied by *summarize.Service.
type Summarizer interface {
	Summarize(ctx context.Context, githubURL string, opts summarize.Options) (interface{}, error)
}

type Handler struct {
	gate       Gate
	summarizer Summarizer
	log        *slog.Logger
}

func NewHandler(gate Gate, summarizer Summarizer, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{gate: gate, summarizer: summarizer, log: log}
}

func clientFrom(c *gin.Context) gateway.Client {
	ua := c.GetHeader("User-Agent")
	if ua == "" {
		ua = "unknown"
	}
	return gateway.Client{
		IP:        auth.ClientIP(c.Request),
		UserAgent: ua,
	}
}

// decodeBody reads a JSON object. An unreadable body yields an empty map so
// the gate still runs its rate limit before reporting missing fields.
func decodeBody(c *gin.Context) map[string]interface{} {
	body := map[string]interface{}{}
	if c.Request.Body == nil {
		return body
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		return map[string]interface{}{}
	}
	return body
}

// writeError responds with the gate error. flag is the boolean field the endpoint
// reports failure with ("valid" or "success").
func writeError(c *gin.Context, flag string, err error) {
	resp := gin.H{flag: false, "error": gateway.PublicMessage(err)}
	var rej *gateway.Rejection
	if errors.As(err, &rej) && errors.Is(err, gateway.ErrRateLimited) {
		resp["resetTime"] = rej.ResetTime.UnixMilli()
	}
	c.AbortWithStatusJSON(gateway.StatusCode(err), resp)
}

// ValidateKey handles POST /validate-key.
func (h *Handler) ValidateKey(c *gin.Context) {
	client := clientFrom(c)
	defer h.recoverEndpoint(c, gateway.EndpointValidate, "valid", client)

	body := decodeBody(c)
	if _, err := h.gate.ValidateKey(c.Request.Context(), client, body["apiKey"]); err != nil {
		writeError(c, "valid", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "API key is valid"})
}

// GithubSummarize handles POST /github-summarize.
func (h *Handler) GithubSummarize(c *gin.Context) {
	client := clientFrom(c)
	defer h.recoverEndpoint(c, gateway.EndpointSummarize, "success", client)
	body := decodeBody(c)

	authz, err := h.gate.AuthorizeSummarize(c.Request.Context(), client, c.GetHeader(auth.APIKeyHeader), body["githubUrl"])
	if err != nil {
		writeError(c, "success", err)
		return
	}

	var opts summarize.Options
	if raw, ok := body["options"].(map[string]interface{}); ok {
		opts.IncludeFullReadme, _ = raw["includeFullReadme"].(bool)
	}

	data, err := h.summarizer.Summarize(c.Request.Context(), authz.URL, opts)
	if err != nil {
		writeError(c, "success", h.gate.ReportFailure(gateway.EndpointSummarize, client, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"usage": gin.H{
			"current":   authz.Usage,
			"limit":     authz.Key.MonthlyLimit,
			"remaining": authz.Remaining(),
		},
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// recoverEndpoint turns a panic inside a gated endpoint into the endpoint's own
// 500 body and records it as an internal failure. Aborted connections are
// re-raised for Recovery.
func (h *Handler) recoverEndpoint(c *gin.Context, endpoint, flag string, client gateway.Client) {
	recovered := recover()
	if recovered == nil {
		return
	}
	if recovered == http.ErrAbortHandler {
		panic(recovered)
	}
	h.log.Error("Panic recovered",
		"error", recovered,
		"path", c.Request.URL.Path,
		"stack", string(debug.Stack()),
	)
	writeError(c, flag, h.gate.ReportFailure(endpoint, client, fmt.Errorf("panic: %v", recovered)))
}

// Recovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"marunose/internal/db"
	"marunose/internal/logger"
	"marunose/internal/model"
	"marunose/internal/security"

	"github.com/gin-gonic/gin"
)

const defaultMonthlyLimit = 1000

// EventSource is satisfied by *security.Logger.
type EventSource interface {
	Events(ip string) []security.Event
}

type CreateKeyRequest struct {
	Name         string  `json:"name" binding:"required"`
	MonthlyLimit int     `json:"monthlyLimit"`
	UserID       *string `json:"userId"`
}

type Handler struct {
	db     db.Service
	events EventSource
	log    *slog.Logger
}

func NewHandler(dbService db.Service, events EventSource, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{db: dbService, events: events, log: log}
}

func maskAll(keys []model.APIKey) []model.APIKey {
	masked := make([]model.APIKey, len(keys))
	for i, k := range keys {
		masked[i] = k.Masked()
	}
	return masked
}

func (h *Handler) ListKeysHandler(c *gin.Context) {
	keys, err := h.db.GetAllKeys(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list api keys", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keys"})
		return
	}
	c.JSON(http.StatusOK, maskAll(keys))
}

// CreateKeyHandler issues a new key. The full key is only returned here.
func (h *Handler) CreateKeyHandler(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
		return
	}
	if req.MonthlyLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Monthly limit must be positive"})
		return
	}
	if req.MonthlyLimit == 0 {
		req.MonthlyLimit = defaultMonthlyLimit
	}

	value, err := model.GenerateKey()
	if err != nil {
		h.log.Error("Failed to generate api key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create key"})
		return
	}

	key := model.APIKey{
		Name:         req.Name,
		Key:          value,
		IsActive:     true,
		Usage:        0,
		MonthlyLimit: req.MonthlyLimit,
		UserID:       req.UserID,
	}
	if err := h.db.CreateKey(c.Request.Context(), &key); err != nil {
		h.log.Error("Failed to create api key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create key"})
		return
	}
	h.log.Info("API key created", "id", key.ID, logger.KeyAttr(key.Key))
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) GetKeyHandler(c *gin.Context) {
	key, err := h.db.GetKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.keyError(c, err, "Failed to get key")
		return
	}
	c.JSON(http.StatusOK, key.Masked())
}

func (h *Handler) UpdateKeyHandler(c *gin.Context) {
	var update db.KeyUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
		return
	}
	if update.MonthlyLimit != nil && *update.MonthlyLimit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Monthly limit must be positive"})
		return
	}

	key, err := h.db.UpdateKey(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		h.keyError(c, err, "Failed to update key")
		return
	}
	c.JSON(http.StatusOK, key.Masked())
}

// ToggleKeyHandler flips the active flag of a key.
func (h *Handler) ToggleKeyHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	current, err := h.db.GetKey(ctx, id)
	if err != nil {
		h.keyError(c, err, "Failed to update key")
		return
	}
	active := !current.IsActive
	key, err := h.db.UpdateKey(ctx, id, db.KeyUpdate{IsActive: &active})
	if err != nil {
		h.keyError(c, err, "Failed to update key")
		return
	}
	h.log.Info("API key status changed", "id", id, "active", active)
	c.JSON(http.StatusOK, key.Masked())
}

func (h *Handler) DeleteKeyHandler(c *gin.Context) {
	if err := h.db.DeleteKey(c.Request.Context(), c.Param("id")); err != nil {
		h.log.Error("Failed to delete api key", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete key"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UsageHandler reports the total usage across all keys.
func (h *Handler) UsageHandler(c *gin.Context) {
	keys, err := h.db.GetAllKeys(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load usage", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage"})
		return
	}
	total, active := 0, 0
	for _, k := range keys {
		total += k.Usage
		if k.IsActive {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{"totalUsage": total, "keys": len(keys), "activeKeys": active})
}

func (h *Handler) SecurityEventsHandler(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusOK, []security.Event{})
		return
	}
	c.JSON(http.StatusOK, h.events.Events(c.Query("ip")))
}

func (h *Handler) keyError(c *gin.Context, err error, message string) {
	if errors.Is(err, db.ErrKeyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	h.log.Error(message, "id", c.Param("id"), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ludo-arena-backend/internal/models"
	"ludo-arena-backend/internal/services"
)

type QueueHandler struct {
	store      *services.RedisService
	matchmaker *services.Matchmaker
	profiles   services.ProfileStore
}

func NewQueueHandler(store *services.RedisService, matchmaker *services.Matchmaker, profiles services.ProfileStore) *QueueHandler {
	return &QueueHandler{store: store, matchmaker: matchmaker, profiles: profiles}
}

type joinQueueRequest struct {
	Mode models.Mode `json:"mode" binding:"required"`
}

// Join enqueues the caller and kicks a pairing attempt in the
// background; the match lands via the status record and a push message.
func (h *QueueHandler) Join(c *gin.Context) {
	var req joinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required"})
		return
	}

	uid := c.GetString("user_id")
	ctx := c.Request.Context()

	name, _ := h.profiles.DisplayName(ctx, uid)
	avatar, _ := h.profiles.Avatar(ctx, uid)

	entry, err := h.matchmaker.Enqueue(ctx, uid, req.Mode, name, avatar)
	if err != nil {
		respondError(c, err)
		return
	}

	mode := req.Mode
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.matchmaker.TriggerPairing(ctx, mode)
	}()

	c.JSON(http.StatusOK, gin.H{"entry_id": entry.ID, "mode": mode, "enqueued_at": entry.EnqueuedAt})
}

func (h *QueueHandler) Leave(c *gin.Context) {
	uid := c.GetString("user_id")
	removed, err := h.matchmaker.LeaveQueue(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Status reports where the caller stands: queue position or the game
// they were matched into.
func (h *QueueHandler) Status(c *gin.Context) {
	uid := c.GetString("user_id")
	ctx := c.Request.Context()

	qs, err := h.store.GetQueueStatus(ctx, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	gs, err := h.store.GetGameStatus(ctx, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": qs, "game": gs})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ludo-arena-backend/internal/apperr"
	"ludo-arena-backend/internal/services"
)

type UserHandler struct {
	store  *services.RedisService
	ledger *services.Ledger
}

func NewUserHandler(store *services.RedisService, ledger *services.Ledger) *UserHandler {
	return &UserHandler{store: store, ledger: ledger}
}

func (h *UserHandler) Wallet(c *gin.Context) {
	uid := c.GetString("user_id")
	w, err := h.ledger.GetWallet(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// Transactions lists the caller's audit trail, newest first.
func (h *UserHandler) Transactions(c *gin.Context) {
	uid := c.GetString("user_id")

	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	txs, err := h.ledger.ListTransactions(c.Request.Context(), uid, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

func (h *UserHandler) Profile(c *gin.Context) {
	uid := c.GetString("user_id")
	p, err := h.store.GetProfile(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if p == nil {
		respondError(c, apperr.New(apperr.NotFound, "profile not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "level": services.LevelForEarnings(p.LifetimeEarnings)})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"
	"ludo-arena-backend/internal/services"
)

type AuthHandler struct {
	store  *services.RedisService
	ledger *services.Ledger
	jwt    *services.JWTService
	cfg    *config.Config
}

func NewAuthHandler(store *services.RedisService, ledger *services.Ledger, jwt *services.JWTService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{store: store, ledger: ledger, jwt: jwt, cfg: cfg}
}

type tokenRequest struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name" binding:"required"`
	Avatar      string `json:"avatar"`
}

// IssueToken bootstraps a player: profile, starter wallet and a session
// token. Idempotent for a returning uid; the wallet is only seeded
// once.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name is required"})
		return
	}
	uid := req.UID
	if uid == "" {
		uid = "u_" + uuid.NewString()
	}

	ctx := c.Request.Context()
	profile := &models.Profile{
		UID:         uid,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
	}
	if existing, err := h.store.GetProfile(ctx, uid); err == nil && existing != nil {
		profile.LifetimeEarnings = existing.LifetimeEarnings
	}
	if err := h.store.SaveProfile(ctx, profile); err != nil {
		respondError(c, err)
		return
	}

	created, err := h.ledger.CreateWallet(ctx, uid, h.cfg.InitialGold, h.cfg.InitialGems)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.jwt.GenerateToken(uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"uid":            uid,
		"wallet_created": created,
		"issued_at":      time.Now().UnixMilli(),
	})
}

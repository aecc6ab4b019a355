package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ludo-arena-backend/internal/services"
)

type LobbyHandler struct {
	lobby *services.LobbyService
}

func NewLobbyHandler(lobby *services.LobbyService) *LobbyHandler {
	return &LobbyHandler{lobby: lobby}
}

func (h *LobbyHandler) OpenTable(c *gin.Context) {
	uid := c.GetString("user_id")
	table, err := h.lobby.OpenTable(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table})
}

func (h *LobbyHandler) CloseTable(c *gin.Context) {
	uid := c.GetString("user_id")
	if err := h.lobby.CloseTable(c.Request.Context(), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *LobbyHandler) JoinTable(c *gin.Context) {
	uid := c.GetString("user_id")
	g, result, err := h.lobby.JoinTable(c.Request.Context(), c.Param("host"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if result == services.JoinMatched {
		c.JSON(http.StatusOK, gin.H{"result": result, "game": g})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

type inviteRequest struct {
	HostUID string `json:"host_uid" binding:"required"`
}

func (h *LobbyHandler) SendInvite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host_uid is required"})
		return
	}
	uid := c.GetString("user_id")
	inv, err := h.lobby.SendInvite(c.Request.Context(), uid, req.HostUID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invite": inv})
}

type inviteResponseRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (h *LobbyHandler) RespondInvite(c *gin.Context) {
	var req inviteResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accept is required"})
		return
	}
	uid := c.GetString("user_id")
	g, err := h.lobby.RespondInvite(c.Request.Context(), c.Param("id"), uid, *req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"status": "rejected"}
	if *req.Accept {
		resp = gin.H{"status": "accepted", "game": g}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LobbyHandler) CancelInvite(c *gin.Context) {
	uid := c.GetString("user_id")
	if err := h.lobby.CancelInvite(c.Request.Context(), c.Param("id"), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *LobbyHandler) GetInvite(c *gin.Context) {
	uid := c.GetString("user_id")
	inv, err := h.lobby.GetInvite(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invite": inv})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ludo-arena-backend/internal/services"
)

type GameHandler struct {
	turns *services.TurnService
}

func NewGameHandler(turns *services.TurnService) *GameHandler {
	return &GameHandler{turns: turns}
}

func (h *GameHandler) Get(c *gin.Context) {
	uid := c.GetString("user_id")
	g, err := h.turns.GetGame(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": g})
}

func (h *GameHandler) Roll(c *gin.Context) {
	uid := c.GetString("user_id")
	roll, forfeited, err := h.turns.RollDice(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roll": roll, "turn_forfeited": forfeited})
}

type moveRequest struct {
	TokenIndex *int `json:"token_index" binding:"required"`
}

func (h *GameHandler) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_index is required"})
		return
	}
	uid := c.GetString("user_id")
	if err := h.turns.SubmitMove(c.Request.Context(), c.Param("id"), uid, *req.TokenIndex); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved"})
}

func (h *GameHandler) Forfeit(c *gin.Context) {
	uid := c.GetString("user_id")
	result, err := h.turns.Forfeit(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

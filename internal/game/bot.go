package game

import (
	"math/rand"

	"ludo-arena-backend/internal/models"
)

type ActionType string

const (
	ActionRoll ActionType = "roll"
	ActionMove ActionType = "move"
	ActionSkip ActionType = "skip"
	ActionWait ActionType = "wait"
)

type BotAction struct {
	Type       ActionType
	TokenIndex int
}

// BotDecision maps the current turn state to an action for uid. The
// policy is intentionally weak: roll when a roll is due, otherwise move
// a uniformly random legal token, skip when nothing is legal. The turn
// machine's correctness never depends on the bot playing well.
func BotDecision(g *models.Game, uid string) BotAction {
	if g == nil || g.Turn != uid {
		return BotAction{Type: ActionWait}
	}

	switch g.TurnPhase {
	case models.PhaseWaitingRoll:
		return BotAction{Type: ActionRoll}
	case models.PhaseWaitingMove, models.PhaseRollingAnim:
		// rollingAnim is reachable here only via timeout takeover; by
		// then the dice value is committed, so treat it as movable.
		if g.DiceValue < 1 || g.DiceValue > 6 {
			return BotAction{Type: ActionWait}
		}
		legal := LegalMoves(g, uid, g.DiceValue)
		if len(legal) == 0 {
			return BotAction{Type: ActionSkip}
		}
		return BotAction{
			Type:       ActionMove,
			TokenIndex: legal[rand.Intn(len(legal))],
		}
	}
	return BotAction{Type: ActionWait}
}

package game_test

import (
	"testing"

	"ludo-arena-backend/internal/game"
	"ludo-arena-backend/internal/models"
)

func TestNextTurnUIDSeatOrder(t *testing.T) {
	g := newTeamGame()

	order := []struct{ from, want string }{
		{"a1", "b1"},
		{"b1", "a2"},
		{"a2", "b2"},
		{"b2", "a1"},
	}
	for _, c := range order {
		if got := game.NextTurnUID(g, c.from); got != c.want {
			t.Errorf("NextTurnUID(%s) = %s, want %s", c.from, got, c.want)
		}
	}
}

func TestNextTurnUIDSkipsLeftSeats(t *testing.T) {
	g := newTeamGame()
	p := g.Players["b1"]
	p.Status = models.SeatLeft
	g.Players["b1"] = p

	if got := game.NextTurnUID(g, "a1"); got != "a2" {
		t.Errorf("left seat should be skipped, got %s", got)
	}

	k := g.Players["a2"]
	k.Status = models.SeatKicked
	g.Players["a2"] = k

	if got := game.NextTurnUID(g, "a1"); got != "b2" {
		t.Errorf("kicked seat should be skipped too, got %s", got)
	}
}

func TestNextTurnUIDFallsBackToCurrent(t *testing.T) {
	g := newTeamGame()
	for uid, p := range g.Players {
		if uid == "a1" {
			continue
		}
		p.Status = models.SeatLeft
		g.Players[uid] = p
	}
	if got := game.NextTurnUID(g, "a1"); got != "a1" {
		t.Errorf("sole remaining player keeps the turn, got %s", got)
	}

	if got := game.NextTurnUID(g, "stranger"); got != "stranger" {
		t.Errorf("unknown current should be returned unchanged, got %s", got)
	}
}

func TestAllInBase(t *testing.T) {
	g := newTwoPlayerGame()
	if !game.AllInBase(g, "alice") {
		t.Error("fresh board should be all in base")
	}
	setTokens(g, "alice", [4]int{0, -1, -1, -1})
	if game.AllInBase(g, "alice") {
		t.Error("one token out means not all in base")
	}
	if game.AllInBase(g, "nobody") {
		t.Error("missing board is never all in base")
	}
}

func TestBotDecision(t *testing.T) {
	g := newTwoPlayerGame()

	if got := game.BotDecision(g, "bob"); got.Type != game.ActionWait {
		t.Errorf("not bob's turn, want wait, got %s", got.Type)
	}
	if got := game.BotDecision(g, "alice"); got.Type != game.ActionRoll {
		t.Errorf("waitingRoll should roll, got %s", got.Type)
	}

	g.TurnPhase = models.PhaseWaitingMove
	g.DiceValue = 3
	if got := game.BotDecision(g, "alice"); got.Type != game.ActionSkip {
		t.Errorf("all in base with a 3 should skip, got %s", got.Type)
	}

	g.DiceValue = 6
	got := game.BotDecision(g, "alice")
	if got.Type != game.ActionMove {
		t.Fatalf("legal moves available, want move, got %s", got.Type)
	}
	if got.TokenIndex < 0 || got.TokenIndex > 3 {
		t.Errorf("chosen token index out of range: %d", got.TokenIndex)
	}

	if got := game.BotDecision(nil, "alice"); got.Type != game.ActionWait {
		t.Errorf("nil game should wait, got %s", got.Type)
	}
}

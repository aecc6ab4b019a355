package game_test

import (
	"testing"

	"ludo-arena-backend/internal/game"
	"ludo-arena-backend/internal/models"
)

func newTwoPlayerGame() *models.Game {
	return &models.Game{
		ID:   "game_test_2p",
		Mode: models.ModeTwoPlayer,
		Players: map[string]models.Player{
			"alice": {Seat: 0, Status: models.SeatActive},
			"bob":   {Seat: 2, Status: models.SeatActive},
		},
		Board: map[string][4]int{
			"alice": {-1, -1, -1, -1},
			"bob":   {-1, -1, -1, -1},
		},
		Turn:      "alice",
		TurnPhase: models.PhaseWaitingRoll,
		State:     models.GameStateActive,
	}
}

func newTeamGame() *models.Game {
	return &models.Game{
		ID:   "game_test_team",
		Mode: models.ModeTeam,
		Players: map[string]models.Player{
			"a1": {Seat: 0, Team: 1, Status: models.SeatActive},
			"b1": {Seat: 1, Team: 2, Status: models.SeatActive},
			"a2": {Seat: 2, Team: 1, Status: models.SeatActive},
			"b2": {Seat: 3, Team: 2, Status: models.SeatActive},
		},
		Board: map[string][4]int{
			"a1": {-1, -1, -1, -1},
			"b1": {-1, -1, -1, -1},
			"a2": {-1, -1, -1, -1},
			"b2": {-1, -1, -1, -1},
		},
		Turn:      "a1",
		TurnPhase: models.PhaseWaitingRoll,
		State:     models.GameStateActive,
	}
}

func setTokens(g *models.Game, uid string, tokens [4]int) {
	g.Board[uid] = tokens
}

func TestTargetPosition(t *testing.T) {
	cases := []struct {
		pos, dice int
		want      int
		legal     bool
	}{
		{-1, 6, 0, true},   // exact six leaves base
		{-1, 1, 0, false},  // anything else stays
		{-1, 5, 0, false},
		{0, 4, 4, true},
		{50, 6, 56, true},  // into the home column
		{51, 6, 57, true},  // exact finish
		{52, 5, 57, true},
		{55, 3, 0, false},  // overshoot
		{57, 1, 0, false},  // finished tokens never move
	}
	for _, c := range cases {
		got, legal := game.TargetPosition(c.pos, c.dice)
		if legal != c.legal {
			t.Errorf("TargetPosition(%d, %d) legal = %v, want %v", c.pos, c.dice, legal, c.legal)
			continue
		}
		if legal && got != c.want {
			t.Errorf("TargetPosition(%d, %d) = %d, want %d", c.pos, c.dice, got, c.want)
		}
	}
}

func TestToGlobal(t *testing.T) {
	if got := game.ToGlobal(0, 0); got != 0 {
		t.Errorf("ToGlobal(0, 0) = %d, want 0", got)
	}
	if got := game.ToGlobal(0, 2); got != 26 {
		t.Errorf("ToGlobal(0, 2) = %d, want 26", got)
	}
	if got := game.ToGlobal(40, 1); got != 1 {
		t.Errorf("ToGlobal(40, 1) = %d, want 1 (wraps)", got)
	}
}

func TestApplyMoveLeaveBase(t *testing.T) {
	g := newTwoPlayerGame()

	if _, err := game.ApplyMove(g, "alice", 0, 3); err != game.ErrIllegalMove {
		t.Fatalf("expected ErrIllegalMove leaving base on 3, got %v", err)
	}

	res, err := game.ApplyMove(g, "alice", 0, 6)
	if err != nil {
		t.Fatalf("leave base on 6 failed: %v", err)
	}
	if res.Board["alice"][0] != 0 {
		t.Errorf("token should land on relative 0, got %d", res.Board["alice"][0])
	}
	if !res.ExtraTurn {
		t.Error("a six should grant an extra turn")
	}
	if res.HasWon {
		t.Error("leaving base is not a win")
	}
	// Input game must be untouched.
	if g.Board["alice"][0] != -1 {
		t.Error("ApplyMove mutated the input board")
	}
}

func TestApplyMoveCapture(t *testing.T) {
	g := newTwoPlayerGame()
	// alice rel 10 -> global 14 after moving 4. Put bob on the same
	// global cell: global 14 is bob's relative (14-26+52)%52 = 40.
	setTokens(g, "alice", [4]int{10, -1, -1, -1})
	setTokens(g, "bob", [4]int{40, -1, -1, -1})

	res, err := game.ApplyMove(g, "alice", 0, 4)
	if err != nil {
		t.Fatalf("capture move failed: %v", err)
	}
	if len(res.Captures) != 1 || res.Captures[0].UID != "bob" || res.Captures[0].TokenIndex != 0 {
		t.Fatalf("expected bob token 0 captured, got %+v", res.Captures)
	}
	if res.Board["bob"][0] != -1 {
		t.Errorf("captured token should be back in base, got %d", res.Board["bob"][0])
	}
	if res.ExtraTurn {
		t.Error("no extra turn without a six")
	}
}

func TestApplyMoveSafeCellNoCapture(t *testing.T) {
	g := newTwoPlayerGame()
	// alice lands on relative 8, a safe cell. Global 8 is bob's
	// relative 34, itself also a safe index in bob's frame.
	setTokens(g, "alice", [4]int{4, -1, -1, -1})
	setTokens(g, "bob", [4]int{34, -1, -1, -1})

	res, err := game.ApplyMove(g, "alice", 0, 4)
	if err != nil {
		t.Fatalf("move to safe cell failed: %v", err)
	}
	if len(res.Captures) != 0 {
		t.Fatalf("no capture expected on a safe cell, got %+v", res.Captures)
	}
	if res.Board["bob"][0] != 34 {
		t.Errorf("bob's token should stay put, got %d", res.Board["bob"][0])
	}
}

func TestApplyMoveTeammatesStack(t *testing.T) {
	g := newTeamGame()
	// a1 rel 10 -> global 10. a2 (seat 2) on global 10 = rel 36.
	setTokens(g, "a1", [4]int{6, -1, -1, -1})
	setTokens(g, "a2", [4]int{36, -1, -1, -1})

	res, err := game.ApplyMove(g, "a1", 0, 4)
	if err != nil {
		t.Fatalf("stacking move failed: %v", err)
	}
	if len(res.Captures) != 0 {
		t.Fatalf("teammates must stack, got captures %+v", res.Captures)
	}
	if res.Board["a2"][0] != 36 {
		t.Errorf("teammate token should stay, got %d", res.Board["a2"][0])
	}
}

func TestApplyMoveOpponentCaptureInTeamGame(t *testing.T) {
	g := newTeamGame()
	// a1 rel 10 -> global 10. b1 (seat 1) on global 10 = rel 49.
	setTokens(g, "a1", [4]int{6, -1, -1, -1})
	setTokens(g, "b1", [4]int{49, -1, -1, -1})

	res, err := game.ApplyMove(g, "a1", 0, 4)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if len(res.Captures) != 1 || res.Captures[0].UID != "b1" {
		t.Fatalf("expected b1 captured, got %+v", res.Captures)
	}
}

func TestApplyMoveHomeColumnIsPrivate(t *testing.T) {
	g := newTwoPlayerGame()
	// Home column positions never collide across seats.
	setTokens(g, "alice", [4]int{52, -1, -1, -1})
	setTokens(g, "bob", [4]int{54, -1, -1, -1})

	res, err := game.ApplyMove(g, "alice", 0, 2)
	if err != nil {
		t.Fatalf("home column move failed: %v", err)
	}
	if len(res.Captures) != 0 {
		t.Fatalf("captures are impossible in the home column, got %+v", res.Captures)
	}
	if res.Board["alice"][0] != 54 {
		t.Errorf("expected 54, got %d", res.Board["alice"][0])
	}
}

func TestApplyMoveWinTwoPlayer(t *testing.T) {
	g := newTwoPlayerGame()
	setTokens(g, "alice", [4]int{57, 57, 57, 55})

	res, err := game.ApplyMove(g, "alice", 3, 2)
	if err != nil {
		t.Fatalf("finishing move failed: %v", err)
	}
	if !res.HasWon {
		t.Error("all four tokens home should win")
	}
}

func TestApplyMoveTeamWinNeedsBothPlayers(t *testing.T) {
	g := newTeamGame()
	setTokens(g, "a1", [4]int{57, 57, 57, 55})
	setTokens(g, "a2", [4]int{57, 57, 57, 57})

	res, err := game.ApplyMove(g, "a1", 3, 2)
	if err != nil {
		t.Fatalf("finishing move failed: %v", err)
	}
	if !res.HasWon {
		t.Error("both teammates all home should win the team game")
	}

	g2 := newTeamGame()
	setTokens(g2, "a1", [4]int{57, 57, 57, 55})
	setTokens(g2, "a2", [4]int{57, 57, 57, 0})

	res2, err := game.ApplyMove(g2, "a1", 3, 2)
	if err != nil {
		t.Fatalf("finishing move failed: %v", err)
	}
	if res2.HasWon {
		t.Error("one teammate still on the track must not win")
	}
}

func TestApplyMoveValidation(t *testing.T) {
	g := newTwoPlayerGame()

	if _, err := game.ApplyMove(g, "nobody", 0, 6); err != game.ErrNoBoard {
		t.Errorf("expected ErrNoBoard, got %v", err)
	}
	if _, err := game.ApplyMove(g, "alice", 4, 6); err != game.ErrBadToken {
		t.Errorf("expected ErrBadToken, got %v", err)
	}
	if _, err := game.ApplyMove(g, "alice", 0, 7); err != game.ErrBadDice {
		t.Errorf("expected ErrBadDice, got %v", err)
	}
}

func TestLegalMoves(t *testing.T) {
	g := newTwoPlayerGame()

	if got := game.LegalMoves(g, "alice", 3); len(got) != 0 {
		t.Errorf("all in base with a 3: no legal moves, got %v", got)
	}
	if got := game.LegalMoves(g, "alice", 6); len(got) != 4 {
		t.Errorf("all in base with a 6: all four tokens legal, got %v", got)
	}

	setTokens(g, "alice", [4]int{56, -1, 10, 57})
	got := game.LegalMoves(g, "alice", 3)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("only the track token should be movable with a 3, got %v", got)
	}
}

func TestTeammateLookups(t *testing.T) {
	g := newTeamGame()

	if !game.AreTeammates(g, "a1", "a2") || !game.AreTeammates(g, "b1", "b2") {
		t.Error("seats two apart should be teammates")
	}
	if game.AreTeammates(g, "a1", "b1") {
		t.Error("adjacent seats are opponents")
	}
	if got := game.TeammateUID(g, "a1"); got != "a2" {
		t.Errorf("TeammateUID(a1) = %q, want a2", got)
	}
	if got := game.TeammateUID(g, "nobody"); got != "" {
		t.Errorf("unknown uid should have no teammate, got %q", got)
	}
}

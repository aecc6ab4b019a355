// Package game holds the pure board, dice and bot logic. Nothing here
// touches the store or the clock; the turn service owns all side effects.
package game

import (
	"errors"

	"ludo-arena-backend/internal/models"
)

// FinalHomeIndex is the finished position in each seat's home column.
const FinalHomeIndex = 57

// safeIndices are outer-track cells, in seat-relative coordinates, where
// captures never occur.
var safeIndices = map[int]bool{
	0: true, 8: true, 13: true, 21: true,
	26: true, 34: true, 39: true, 47: true,
}

var (
	ErrNoBoard     = errors.New("board for player not found")
	ErrBadToken    = errors.New("invalid token index")
	ErrBadDice     = errors.New("invalid dice value")
	ErrIllegalMove = errors.New("illegal move with this token and dice")
)

type Capture struct {
	UID        string
	TokenIndex int
}

type MoveResult struct {
	Board     map[string][4]int
	HasWon    bool
	ExtraTurn bool
	Captures  []Capture
}

// ApplyMove validates tokenIndex against dice and returns the resulting
// board, captures and win/extra-turn flags. The input game is not
// modified. It does not touch turn order, six counters or deadlines.
func ApplyMove(g *models.Game, uid string, tokenIndex, dice int) (*MoveResult, error) {
	myBoard, ok := g.Board[uid]
	if !ok {
		return nil, ErrNoBoard
	}
	if tokenIndex < 0 || tokenIndex > 3 {
		return nil, ErrBadToken
	}
	if dice < 1 || dice > 6 {
		return nil, ErrBadDice
	}

	target, legal := TargetPosition(myBoard[tokenIndex], dice)
	if !legal {
		return nil, ErrIllegalMove
	}

	board := make(map[string][4]int, len(g.Board))
	for id, tokens := range g.Board {
		board[id] = tokens
	}

	var captures []Capture
	if target >= 0 && target <= 51 && !safeIndices[target] {
		mySeat := g.SeatOf(uid)
		myGlobal := ToGlobal(target, mySeat)

		for otherUID, tokens := range board {
			if otherUID == uid {
				continue
			}
			otherSeat := g.SeatOf(otherUID)
			for i, pos := range tokens {
				if pos < 0 || pos > 51 {
					continue
				}
				if ToGlobal(pos, otherSeat) != myGlobal {
					continue
				}
				// Teammates stack without capture.
				if g.Mode == models.ModeTeam && AreTeammates(g, uid, otherUID) {
					continue
				}
				tokens[i] = -1
				captures = append(captures, Capture{UID: otherUID, TokenIndex: i})
			}
			board[otherUID] = tokens
		}
	}

	mine := board[uid]
	mine[tokenIndex] = target
	board[uid] = mine

	hasWon := false
	if g.Mode == models.ModeTeam {
		mate := TeammateUID(g, uid)
		hasWon = allHome(board[uid]) && mate != "" && allHome(board[mate])
	} else {
		hasWon = allHome(board[uid])
	}

	return &MoveResult{
		Board:     board,
		HasWon:    hasWon,
		ExtraTurn: dice == 6,
		Captures:  captures,
	}, nil
}

// TargetPosition computes the destination for a token at pos moving by
// dice. The second return is false when the move is illegal: leaving
// base needs an exact 6, and the home column may never be overshot.
func TargetPosition(pos, dice int) (int, bool) {
	if pos == -1 {
		if dice != 6 {
			return 0, false
		}
		return 0, true
	}
	target := pos + dice
	if target > FinalHomeIndex {
		return 0, false
	}
	return target, true
}

// ToGlobal converts a seat-relative outer-track position to the shared
// 52-cell track. Seats sit 13 cells apart.
func ToGlobal(rel, seat int) int {
	return (rel + seat*13) % 52
}

// IsSafeIndex reports whether a relative outer-track cell blocks captures.
func IsSafeIndex(pos int) bool {
	return safeIndices[pos]
}

// LegalMoves lists the token indices uid could move with this dice value.
func LegalMoves(g *models.Game, uid string, dice int) []int {
	tokens, ok := g.Board[uid]
	if !ok {
		return nil
	}
	var legal []int
	for i := range tokens {
		if _, ok := TargetPosition(tokens[i], dice); ok {
			legal = append(legal, i)
		}
	}
	return legal
}

// AreTeammates reports whether two seats are on the same team. Team A
// holds seats 0 and 2, team B seats 1 and 3.
func AreTeammates(g *models.Game, uid1, uid2 string) bool {
	s1, s2 := g.SeatOf(uid1), g.SeatOf(uid2)
	if s1 < 0 || s2 < 0 {
		return false
	}
	d := s1 - s2
	return d == 2 || d == -2
}

// TeammateUID finds the player seated across from uid, or "".
func TeammateUID(g *models.Game, uid string) string {
	mySeat := g.SeatOf(uid)
	if mySeat < 0 {
		return ""
	}
	target := (mySeat + 2) % 4
	for id, p := range g.Players {
		if p.Seat == target {
			return id
		}
	}
	return ""
}

func allHome(tokens [4]int) bool {
	for _, p := range tokens {
		if p != FinalHomeIndex {
			return false
		}
	}
	return true
}

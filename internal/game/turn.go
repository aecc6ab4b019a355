package game

import (
	"sort"

	"ludo-arena-backend/internal/models"
)

// NextTurnUID returns the next seat to act after current, walking seats
// in seat-index order and skipping players who left or were kicked.
// Falls back to current when nobody else is active.
func NextTurnUID(g *models.Game, current string) string {
	uids := make([]string, 0, len(g.Players))
	for uid := range g.Players {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool {
		return g.Players[uids[i]].Seat < g.Players[uids[j]].Seat
	})

	cur := -1
	for i, uid := range uids {
		if uid == current {
			cur = i
			break
		}
	}
	if cur == -1 {
		return current
	}

	for i := 1; i <= len(uids); i++ {
		next := uids[(cur+i)%len(uids)]
		status := g.Players[next].Status
		if status == models.SeatLeft || status == models.SeatKicked {
			continue
		}
		return next
	}
	return current
}

// AllInBase reports whether every token of uid is still in the yard.
func AllInBase(g *models.Game, uid string) bool {
	tokens, ok := g.Board[uid]
	if !ok {
		return false
	}
	for _, p := range tokens {
		if p != -1 {
			return false
		}
	}
	return true
}

package game

import "math/rand"

// RollDice returns a dice value for the current roller. A player with
// all four tokens in base gets a 6 half the time and a uniform 1..5
// otherwise; everyone else rolls a plain uniform 1..6. The skew keeps
// opening turns from stalling without changing in-play odds.
func RollDice(allInBase bool) int {
	if allInBase {
		if rand.Float64() < 0.5 {
			return 6
		}
		return 1 + rand.Intn(5)
	}
	return 1 + rand.Intn(6)
}

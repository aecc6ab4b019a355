package models

// QueueEntry is one player waiting for a match. Never mutated in place;
// the claim primitive reads then deletes it atomically.
type QueueEntry struct {
	ID         string `json:"id" redis:"id"`
	UID        string `json:"uid" redis:"uid"`
	Stake      int64  `json:"stake" redis:"stake"`
	Name       string `json:"name" redis:"name"`
	Avatar     string `json:"avatar,omitempty" redis:"avatar"`
	EnqueuedAt int64  `json:"enqueued_at" redis:"enqueued_at"`
}

// TeamTicket is an ephemeral pair of players (or player + bot
// placeholder) waiting for an opposing team in the 4-player queue.
type TeamTicket struct {
	ID         string `json:"id" redis:"id"`
	P1         string `json:"p1" redis:"p1"`
	P2         string `json:"p2" redis:"p2"`
	P1Stake    int64  `json:"p1_stake" redis:"p1_stake"`
	P2Stake    int64  `json:"p2_stake" redis:"p2_stake"`
	PartialBot bool   `json:"partial_bot,omitempty" redis:"partial_bot"`
	CreatedAt  int64  `json:"created_at" redis:"created_at"`
}

// RealPlayers returns the non-bot members with their stakes, in debit order.
func (t *TeamTicket) RealPlayers() []StakedPlayer {
	var out []StakedPlayer
	if !IsBot(t.P1) {
		out = append(out, StakedPlayer{UID: t.P1, Stake: t.P1Stake})
	}
	if !IsBot(t.P2) {
		out = append(out, StakedPlayer{UID: t.P2, Stake: t.P2Stake})
	}
	return out
}

type StakedPlayer struct {
	UID   string
	Stake int64
}

// QueueStatus mirrors the player's matchmaking state for the client.
type QueueStatus struct {
	Status       string `json:"status" redis:"status"` // queued, queued_solo, queued_team, paired, insufficient_funds, left
	EntryID      string `json:"entry_id,omitempty" redis:"entry_id"`
	TicketID     string `json:"ticket_id,omitempty" redis:"ticket_id"`
	GameID       string `json:"game_id,omitempty" redis:"game_id"`
	TableID      string `json:"table_id,omitempty" redis:"table_id"`
	Reason       string `json:"reason,omitempty" redis:"reason"`
	TeammateName string `json:"teammate_name,omitempty" redis:"teammate_name"`
	UpdatedAt    int64  `json:"updated_at" redis:"updated_at"`
}

// GameStatus points a player at their live session, if any.
type GameStatus struct {
	Status    string `json:"status" redis:"status"` // playing, idle
	GameID    string `json:"game_id,omitempty" redis:"game_id"`
	TableID   string `json:"table_id,omitempty" redis:"table_id"`
	UpdatedAt int64  `json:"updated_at" redis:"updated_at"`
}

// PrivateTable is a host's single outstanding private table, keyed by
// the host UID. A guest claims it by flipping Status waiting -> matched.
type PrivateTable struct {
	UID       string `json:"uid" redis:"uid"`
	Stake     int64  `json:"stake" redis:"stake"`
	Status    string `json:"status" redis:"status"` // waiting, matched
	CreatedAt int64  `json:"created_at" redis:"created_at"`
}

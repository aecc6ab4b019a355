package models

// BotUID is the shared placeholder opponent used by timeout backfill.
// Synthetic teammates for 4-player bot games get unique "bot_" prefixed IDs.
const BotUID = "BOT_PLAYER"

type Mode string

const (
	ModeTwoPlayer Mode = "2p"
	ModeTeam      Mode = "team"
	ModePrivate   Mode = "private"
)

type GameState string

const (
	GameStateActive    GameState = "active"
	GameStateCompleted GameState = "completed"
	GameStateAborted   GameState = "aborted"
)

type TurnPhase string

const (
	PhaseWaitingRoll TurnPhase = "waitingRoll"
	PhaseRollingAnim TurnPhase = "rollingAnim"
	PhaseWaitingMove TurnPhase = "waitingMove"
)

type SeatStatus string

const (
	SeatActive SeatStatus = "active"
	SeatLeft   SeatStatus = "left"
	SeatKicked SeatStatus = "kicked"
)

// Player is one seated participant, embedded in both Table and Game.
type Player struct {
	Seat   int        `json:"seat" redis:"seat"`
	Team   int        `json:"team,omitempty" redis:"team"` // 1 or 2, team mode only
	Color  string     `json:"color" redis:"color"`
	Name   string     `json:"name" redis:"name"`
	Avatar string     `json:"avatar,omitempty" redis:"avatar"`
	Level  int        `json:"level,omitempty" redis:"level"`
	Status SeatStatus `json:"status" redis:"status"`
	LeftAt int64      `json:"left_at,omitempty" redis:"left_at"`
}

// Table is the lobby-facing record of a match.
type Table struct {
	ID        string            `json:"id" redis:"id"`
	GameID    string            `json:"game_id" redis:"game_id"`
	Mode      Mode              `json:"mode" redis:"mode"`
	Stake     int64             `json:"stake" redis:"stake"`
	Players   map[string]Player `json:"players" redis:"players"`
	Status    string            `json:"status" redis:"status"` // active, completed
	CreatedAt int64             `json:"created_at" redis:"created_at"`
}

// Game is the authoritative turn-by-turn record. Mutated only by the
// turn service; immutable once State leaves "active".
type Game struct {
	ID      string            `json:"id" redis:"id"`
	TableID string            `json:"table_id" redis:"table_id"`
	Mode    Mode              `json:"mode" redis:"mode"`
	Stake   int64             `json:"stake" redis:"stake"`
	Rake    float64           `json:"rake" redis:"rake"`
	Players map[string]Player `json:"players" redis:"players"`

	// Board holds each player's 4 token positions, encoded relative to
	// that player's seat: -1 base, 0..51 outer track, 52..57 home column.
	Board map[string][4]int `json:"board" redis:"board"`

	Turn             string    `json:"turn" redis:"turn"`
	TurnPhase        TurnPhase `json:"turn_phase" redis:"turn_phase"`
	DiceValue        int       `json:"dice_value" redis:"dice_value"`
	ConsecutiveSixes int       `json:"consecutive_sixes" redis:"consecutive_sixes"`

	TurnStartedAt int64 `json:"turn_started_at" redis:"turn_started_at"`
	TurnDeadline  int64 `json:"turn_deadline" redis:"turn_deadline"`
	BotTakeoverAt int64 `json:"bot_takeover_at" redis:"bot_takeover_at"`
	LastMoveAt    int64 `json:"last_move_at" redis:"last_move_at"`

	State     GameState `json:"state" redis:"state"`
	WinnerUID string    `json:"winner_uid,omitempty" redis:"winner_uid"`
	LoserUID  string    `json:"loser_uid,omitempty" redis:"loser_uid"`
	WinReason string    `json:"win_reason,omitempty" redis:"win_reason"`

	CreatedAt int64 `json:"created_at" redis:"created_at"`
	UpdatedAt int64 `json:"updated_at" redis:"updated_at"`
}

// SeatOf returns the seat index for uid, or -1 when not seated.
func (g *Game) SeatOf(uid string) int {
	p, ok := g.Players[uid]
	if !ok {
		return -1
	}
	return p.Seat
}

func (g *Game) HasPlayer(uid string) bool {
	_, ok := g.Players[uid]
	return ok
}

func (m Mode) Valid() bool {
	switch m {
	case ModeTwoPlayer, ModeTeam, ModePrivate:
		return true
	}
	return false
}

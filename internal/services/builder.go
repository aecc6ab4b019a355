package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"
)

// GameBuilder materializes a new session from a resolved set of seated
// players: table record, game record and the per-player status pointers,
// written together in one batch. It has no rollback path of its own; it
// runs as the final step after the caller has already reserved funds.
type GameBuilder struct {
	store    *RedisService
	cfg      *config.Config
	profiles ProfileStore
}

func NewGameBuilder(store *RedisService, cfg *config.Config, profiles ProfileStore) *GameBuilder {
	return &GameBuilder{store: store, cfg: cfg, profiles: profiles}
}

// SeatAssignment is one pre-resolved player handed to the builder.
type SeatAssignment struct {
	UID  string
	Seat int
	Team int    // 1 or 2 in team mode, 0 otherwise
	Name string // display hint, overrides the profile name if set
}

// Fixed level curve: early levels at hand-picked milestones, then a
// constant step per level, capped.
var levelThresholds = []int64{1000, 5000, 15000, 30000, 50000}

const (
	levelStep = 25000
	levelCap  = 50
)

// LevelForEarnings derives a display level from lifetime winnings.
func LevelForEarnings(earnings int64) int {
	level := 1
	for _, t := range levelThresholds {
		if earnings < t {
			return level
		}
		level++
	}
	last := levelThresholds[len(levelThresholds)-1]
	for earnings >= last+levelStep {
		last += levelStep
		level++
		if level >= levelCap {
			return levelCap
		}
	}
	return level
}

// CreateActiveGame builds and persists the session. The first listed
// player takes the opening turn. Bot seats get canned display data and
// no status pointers.
func (b *GameBuilder) CreateActiveGame(ctx context.Context, mode models.Mode, stake int64, seats []SeatAssignment) (*models.Game, error) {
	if len(seats) == 0 {
		return nil, fmt.Errorf("no players for %s game", mode)
	}

	gameID := models.GenerateGameID()
	tableID := models.GenerateTableID()
	now := time.Now().UnixMilli()

	players := make(map[string]models.Player, len(seats))
	board := make(map[string][4]int, len(seats))

	for _, s := range seats {
		p := models.Player{
			Seat:   s.Seat,
			Team:   s.Team,
			Color:  models.ColorForSeat(s.Seat),
			Name:   s.Name,
			Status: models.SeatActive,
		}
		if models.IsBot(s.UID) {
			if p.Name == "" {
				p.Name = fmt.Sprintf("Bot %d", s.Seat+1)
			}
		} else {
			b.enrich(ctx, s.UID, &p)
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("Player %d", s.Seat+1)
		}
		players[s.UID] = p
		board[s.UID] = [4]int{-1, -1, -1, -1}
	}

	table := &models.Table{
		ID:        tableID,
		GameID:    gameID,
		Mode:      mode,
		Stake:     stake,
		Players:   players,
		Status:    "active",
		CreatedAt: now,
	}

	g := &models.Game{
		ID:               gameID,
		TableID:          tableID,
		Mode:             mode,
		Stake:            stake,
		Rake:             b.cfg.Rake,
		Players:          players,
		Board:            board,
		Turn:             seats[0].UID,
		TurnPhase:        models.PhaseWaitingRoll,
		DiceValue:        1,
		ConsecutiveSixes: 0,
		TurnStartedAt:    now,
		TurnDeadline:     now + b.cfg.TurnTimeout.Milliseconds(),
		BotTakeoverAt:    now + b.cfg.BotTakeover.Milliseconds(),
		LastMoveAt:       now,
		State:            models.GameStateActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := b.persist(ctx, table, g, seats); err != nil {
		return nil, err
	}

	uids := make([]string, 0, len(seats))
	for _, s := range seats {
		uids = append(uids, s.UID)
	}
	log.Printf("GAME_BUILDER: created %s game %s for %s", mode, gameID, strings.Join(uids, ", "))
	return g, nil
}

// enrich pulls display name, avatar and derived level from the profile
// collaborator. Missing profiles degrade to defaults; enrichment never
// fails session creation.
func (b *GameBuilder) enrich(ctx context.Context, uid string, p *models.Player) {
	if name, err := b.profiles.DisplayName(ctx, uid); err == nil && name != "" && p.Name == "" {
		p.Name = name
	}
	if avatar, err := b.profiles.Avatar(ctx, uid); err == nil {
		p.Avatar = avatar
	}
	if earnings, err := b.profiles.LifetimeEarnings(ctx, uid); err == nil {
		p.Level = LevelForEarnings(earnings)
	} else {
		p.Level = 1
	}
}

// persist writes table, game and status pointers as one pipelined
// batch. The store grants pipelined writes together in practice; a
// partial failure surfaces as an error the caller compensates for.
func (b *GameBuilder) persist(ctx context.Context, table *models.Table, g *models.Game, seats []SeatAssignment) error {
	tableData, err := json.Marshal(table)
	if err != nil {
		return err
	}
	gameData, err := json.Marshal(g)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	pipe := b.store.client.Pipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyTable, table.ID), tableData, TTLGame)
	pipe.Set(ctx, fmt.Sprintf(KeyGame, g.ID), gameData, TTLGame)
	pipe.SAdd(ctx, KeyActiveGames, g.ID)

	for _, s := range seats {
		if models.IsBot(s.UID) {
			continue
		}
		qs, err := json.Marshal(&models.QueueStatus{
			Status: "paired", GameID: g.ID, TableID: table.ID, UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		gs, err := json.Marshal(&models.GameStatus{
			Status: "playing", GameID: g.ID, TableID: table.ID, UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		pipe.Set(ctx, fmt.Sprintf(KeyQueueStatus, s.UID), qs, 0)
		pipe.Set(ctx, fmt.Sprintf(KeyGameStatus, s.UID), gs, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist game %s: %v", g.ID, err)
	}
	return nil
}

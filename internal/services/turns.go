package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ludo-arena-backend/internal/apperr"
	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/game"
	"ludo-arena-backend/internal/models"
)

const (
	// rollAnimationDelay is the window the client plays the dice
	// animation in; move eligibility is computed after it.
	rollAnimationDelay = 600 * time.Millisecond
	// autoMoveDelay lets the player see the dice before a forced
	// single-option move is applied for them.
	autoMoveDelay = 500 * time.Millisecond
	// botThinkDelay paces bot seats so turns stay watchable.
	botThinkDelay = 2 * time.Second
)

// errStale marks a watcher that slept through a state change: the
// deadline or phase it acted for is no longer current. Never surfaced.
var errStale = errors.New("state changed while waiting")

// TurnService is the turn state machine. It is the only mutator of game
// records once the builder has written them. Every mutation that hands
// the turn over also rewrites LastMoveAt, which is the token all
// sleeping watchers re-validate before acting.
type TurnService struct {
	store    *RedisService
	ledger   *Ledger
	cfg      *config.Config
	notifier Notifier
}

func NewTurnService(store *RedisService, ledger *Ledger, cfg *config.Config, notifier Notifier) *TurnService {
	return &TurnService{store: store, ledger: ledger, cfg: cfg, notifier: notifier}
}

// GetGame fetches a session for a participant.
func (ts *TurnService) GetGame(ctx context.Context, gameID, uid string) (*models.Game, error) {
	g, err := ts.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.New(apperr.NotFound, "game not found")
	}
	if !g.HasPlayer(uid) {
		return nil, apperr.New(apperr.PermissionDenied, "not a player in this game")
	}
	return g, nil
}

// Activate starts the watchers for a freshly built session.
func (ts *TurnService) Activate(g *models.Game) {
	ts.scheduleWatchers(g)
	ts.notifyPlayers(g, "game_started", map[string]any{
		"game_id": g.ID, "table_id": g.TableID, "mode": g.Mode,
	})
}

// ResumeWatchers reattaches deadline and bot watchers to every active
// session after a restart. Watchers live in-process only; without this
// a game in flight during a deploy would stall until the hard sweep.
func (ts *TurnService) ResumeWatchers(ctx context.Context) {
	ids, err := ts.store.ActiveGameIDs(ctx)
	if err != nil {
		log.Printf("RESUME: failed to list active games: %v", err)
		return
	}
	n := 0
	for _, id := range ids {
		g, err := ts.store.GetGame(ctx, id)
		if err != nil || g == nil || g.State != models.GameStateActive {
			continue
		}
		ts.scheduleWatchers(g)
		n++
	}
	if n > 0 {
		log.Printf("RESUME: reattached watchers for %d active games", n)
	}
}

// --------------------------------------------------
// Player actions
// --------------------------------------------------

// RollDice rolls for uid. Only legal in waitingRoll for the current
// turn holder. A third consecutive six forfeits the turn outright.
func (ts *TurnService) RollDice(ctx context.Context, gameID, uid string) (int, bool, error) {
	var roll int
	var forfeited bool

	updated, err := ts.store.UpdateGame(ctx, gameID, func(g *models.Game) error {
		if err := ts.guardTurn(g, uid); err != nil {
			return err
		}
		if g.TurnPhase != models.PhaseWaitingRoll {
			return apperr.New(apperr.FailedPrecondition, "you already rolled, move a token")
		}

		roll = game.RollDice(game.AllInBase(g, uid))
		now := time.Now().UnixMilli()

		g.DiceValue = roll
		if roll == 6 {
			g.ConsecutiveSixes++
		} else {
			g.ConsecutiveSixes = 0
		}

		if g.ConsecutiveSixes >= 3 {
			forfeited = true
			g.ConsecutiveSixes = 0
			g.Turn = game.NextTurnUID(g, uid)
			g.TurnPhase = models.PhaseWaitingRoll
			ts.stampTurn(g, now)
			return nil
		}

		forfeited = false
		g.TurnPhase = models.PhaseRollingAnim
		g.LastMoveAt = now
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if updated == nil {
		return 0, false, apperr.New(apperr.NotFound, "game not found")
	}

	if forfeited {
		log.Printf("TURN_FORFEIT: %s rolled three sixes in %s", uid, gameID)
	}
	ts.scheduleWatchers(updated)
	ts.notifyPlayers(updated, "dice_rolled", map[string]any{
		"game_id": gameID, "uid": uid, "roll": roll, "turn_forfeited": forfeited,
	})
	return roll, forfeited, nil
}

// SubmitMove applies uid's chosen token move. Only legal in waitingMove
// for the turn holder with the last rolled dice value.
func (ts *TurnService) SubmitMove(ctx context.Context, gameID, uid string, tokenIndex int) error {
	var captures []game.Capture

	updated, err := ts.store.UpdateGame(ctx, gameID, func(g *models.Game) error {
		if err := ts.guardTurn(g, uid); err != nil {
			return err
		}
		if g.TurnPhase != models.PhaseWaitingMove {
			return apperr.New(apperr.FailedPrecondition, "you must roll first")
		}
		if g.DiceValue < 1 || g.DiceValue > 6 {
			return apperr.New(apperr.FailedPrecondition, "invalid dice value")
		}

		res, err := game.ApplyMove(g, uid, tokenIndex, g.DiceValue)
		if err != nil {
			return apperr.Wrap(apperr.FailedPrecondition, err.Error(), err)
		}
		captures = res.Captures
		g.Board = res.Board
		now := time.Now().UnixMilli()

		switch {
		case res.HasWon:
			g.State = models.GameStateCompleted
			g.WinnerUID = uid
			g.WinReason = "all_home"
			g.LastMoveAt = now
		case res.ExtraTurn:
			// A six earns another roll; the six streak carries over.
			g.TurnPhase = models.PhaseWaitingRoll
			ts.stampTurn(g, now)
		default:
			g.Turn = game.NextTurnUID(g, uid)
			g.TurnPhase = models.PhaseWaitingRoll
			g.ConsecutiveSixes = 0
			ts.stampTurn(g, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return apperr.New(apperr.NotFound, "game not found")
	}

	ts.notifyPlayers(updated, "move_applied", map[string]any{
		"game_id": gameID, "uid": uid, "token_index": tokenIndex, "captures": len(captures),
	})

	if updated.State == models.GameStateCompleted {
		ts.finishGame(ctx, updated)
		return nil
	}
	ts.scheduleWatchers(updated)
	return nil
}

// Forfeit lets a participant abandon an active game. In 2-seat modes
// the remaining player wins immediately. In team mode the seat is
// marked left and skipped; when both teammates have left, the opposing
// team wins. Results: "left", "loss", "aborted".
func (ts *TurnService) Forfeit(ctx context.Context, gameID, uid string) (string, error) {
	var result string

	updated, err := ts.store.UpdateGame(ctx, gameID, func(g *models.Game) error {
		if g.State != models.GameStateActive {
			return apperr.New(apperr.FailedPrecondition, "game is not active")
		}
		p, ok := g.Players[uid]
		if !ok {
			return apperr.New(apperr.PermissionDenied, "not a player in this game")
		}

		now := time.Now().UnixMilli()

		if g.Mode != models.ModeTeam {
			winner := ""
			for other := range g.Players {
				if other != uid {
					winner = other
					break
				}
			}
			if winner == "" {
				g.State = models.GameStateAborted
				result = "aborted"
				return nil
			}
			g.State = models.GameStateCompleted
			g.WinnerUID = winner
			g.LoserUID = uid
			g.WinReason = "opponent_forfeit"
			result = "loss"
			return nil
		}

		mate := game.TeammateUID(g, uid)
		mateLeft := mate == "" || g.Players[mate].Status == models.SeatLeft

		if !mateLeft {
			// Teammate plays on; this seat is skipped from now on.
			p.Status = models.SeatLeft
			p.LeftAt = now
			g.Players[uid] = p
			if g.Turn == uid {
				g.Turn = game.NextTurnUID(g, uid)
				g.TurnPhase = models.PhaseWaitingRoll
				g.ConsecutiveSixes = 0
				ts.stampTurn(g, now)
			}
			result = "left"
			return nil
		}

		// Whole team gone: opposing team wins.
		p.Status = models.SeatLeft
		p.LeftAt = now
		g.Players[uid] = p
		myTeam := p.Team
		for other, od := range g.Players {
			if od.Team != myTeam {
				g.State = models.GameStateCompleted
				g.WinnerUID = other
				g.LoserUID = uid
				g.WinReason = "opposing_team_forfeit"
				result = "loss"
				return nil
			}
		}
		g.State = models.GameStateAborted
		result = "aborted"
		return nil
	})
	if err != nil {
		return "", err
	}
	if updated == nil {
		return "", apperr.New(apperr.NotFound, "game not found")
	}

	log.Printf("FORFEIT: %s in %s -> %s", uid, gameID, result)
	ts.notifyPlayers(updated, "player_left", map[string]any{"game_id": gameID, "uid": uid})

	switch updated.State {
	case models.GameStateCompleted:
		ts.finishGame(ctx, updated)
	case models.GameStateAborted:
		ts.finishGame(ctx, updated)
	default:
		ts.scheduleWatchers(updated)
	}
	return result, nil
}

func (ts *TurnService) guardTurn(g *models.Game, uid string) error {
	if g.State != models.GameStateActive {
		return apperr.New(apperr.FailedPrecondition, "game is not active")
	}
	if !g.HasPlayer(uid) {
		return apperr.New(apperr.PermissionDenied, "not a player in this game")
	}
	if g.Turn != uid {
		return apperr.New(apperr.FailedPrecondition, "not your turn")
	}
	return nil
}

// stampTurn refreshes the deadline fields for a fresh turn.
func (ts *TurnService) stampTurn(g *models.Game, now int64) {
	g.TurnStartedAt = now
	g.TurnDeadline = now + ts.cfg.TurnTimeout.Milliseconds()
	g.BotTakeoverAt = now + ts.cfg.BotTakeover.Milliseconds()
	g.LastMoveAt = now
}

// --------------------------------------------------
// Watchers
// --------------------------------------------------

// scheduleWatchers spawns whatever follow-up the new state needs. Each
// watcher carries the LastMoveAt it was scheduled for and acts only if
// the game still matches: any concurrent human action invalidates it.
func (ts *TurnService) scheduleWatchers(g *models.Game) {
	if g == nil || g.State != models.GameStateActive {
		return
	}
	switch g.TurnPhase {
	case models.PhaseRollingAnim:
		go ts.runPostRoll(g.ID, g.LastMoveAt)
	case models.PhaseWaitingRoll, models.PhaseWaitingMove:
		if models.IsBot(g.Turn) {
			go ts.runBotTurn(g.ID, g.LastMoveAt)
		}
		deadline := g.TurnDeadline
		if p, ok := g.Players[g.Turn]; ok && (p.Status == models.SeatLeft || p.Status == models.SeatKicked) {
			// An abandoned seat gets the shorter takeover window, not
			// the full human grace period.
			deadline = g.BotTakeoverAt
		}
		go ts.watchDeadline(g.ID, g.LastMoveAt, deadline)
	}
}

// runPostRoll waits out the dice animation, then computes move
// eligibility: no legal move skips the turn, exactly one is applied
// automatically, otherwise the player gets the waitingMove phase.
func (ts *TurnService) runPostRoll(gameID string, token int64) {
	time.Sleep(rollAnimationDelay)
	ctx := context.Background()

	g, err := ts.store.GetGame(ctx, gameID)
	if err != nil || g == nil {
		return
	}
	if g.State != models.GameStateActive || g.TurnPhase != models.PhaseRollingAnim || g.LastMoveAt != token {
		return
	}

	uid := g.Turn
	legal := game.LegalMoves(g, uid, g.DiceValue)

	if len(legal) == 0 {
		updated, err := ts.store.UpdateGame(ctx, gameID, func(g *models.Game) error {
			if g.State != models.GameStateActive || g.TurnPhase != models.PhaseRollingAnim || g.LastMoveAt != token {
				return errStale
			}
			g.Turn = game.NextTurnUID(g, uid)
			g.TurnPhase = models.PhaseWaitingRoll
			g.ConsecutiveSixes = 0
			ts.stampTurn(g, time.Now().UnixMilli())
			return nil
		})
		if err != nil || updated == nil {
			return
		}
		ts.notifyPlayers(updated, "turn_skipped", map[string]any{"game_id": gameID, "uid": uid})
		ts.scheduleWatchers(updated)
		return
	}

	updated, err := ts.store.UpdateGame(ctx, gameID, func(g *models.Game) error {
		if g.State != models.GameStateActive || g.TurnPhase != models.PhaseRollingAnim || g.LastMoveAt != token {
			return errStale
		}
		g.TurnPhase = models.PhaseWaitingMove
		g.LastMoveAt = time.Now().UnixMilli()
		return nil
	})
	if err != nil || updated == nil {
		return
	}
	ts.scheduleWatchers(updated)

	if len(legal) == 1 {
		// Forced move: apply it for the player after a beat.
		time.Sleep(autoMoveDelay)
		if err := ts.SubmitMove(ctx, gameID, uid, legal[0]); err != nil && !apperr.Is(err, apperr.FailedPrecondition) {
			log.Printf("AUTO_MOVE: failed for %s in %s: %v", uid, gameID, err)
		}
	}
}

// watchDeadline sleeps until the turn deadline, then, if the state it
// slept for is still current, plays the seat's action via the bot
// policy. This is how stalled human turns self-heal; it follows exactly
// the same rules as a player action.
func (ts *TurnService) watchDeadline(gameID string, token, deadline int64) {
	if delay := time.Until(time.UnixMilli(deadline)); delay > 0 {
		time.Sleep(delay)
	}
	ctx := context.Background()

	g, err := ts.store.GetGame(ctx, gameID)
	if err != nil || g == nil {
		return
	}
	if g.State != models.GameStateActive || g.LastMoveAt != token {
		return
	}

	uid := g.Turn
	if p, ok := g.Players[uid]; ok && (p.Status == models.SeatLeft || p.Status == models.SeatKicked) {
		ts.skipTurn(ctx, gameID, uid, token)
		return
	}

	log.Printf("AUTO_PLAY: deadline passed for %s in %s (phase %s)", uid, gameID, g.TurnPhase)
	ts.execute(ctx, gameID, uid, game.BotDecision(g, uid), token)
}

// runBotTurn paces and plays a bot-held seat.
func (ts *TurnService) runBotTurn(gameID string, token int64) {
	time.Sleep(botThinkDelay)
	ctx := context.Background()

	g, err := ts.store.GetGame(ctx, gameID)
	if err != nil || g == nil {
		return
	}
	if g.State != models.GameStateActive || g.LastMoveAt != token || !models.IsBot(g.Turn) {
		return
	}
	ts.execute(ctx, gameID, g.Turn, game.BotDecision(g, g.Turn), token)
}

// execute runs a decided action on uid's behalf through the normal
// action paths. Precondition failures mean the player acted first.
func (ts *TurnService) execute(ctx context.Context, gameID, uid string, action game.BotAction, token int64) {
	switch action.Type {
	case game.ActionRoll:
		if _, _, err := ts.RollDice(ctx, gameID, uid); err != nil && !apperr.Is(err, apperr.FailedPrecondition) {
			log.Printf("BOT_ACTION: roll failed for %s in %s: %v", uid, gameID, err)
		}
	case game.ActionMove:
		if err := ts.SubmitMove(ctx, gameID, uid, action.TokenIndex); err != nil && !apperr.Is(err, apperr.FailedPrecondition) {
			log.Printf("BOT_ACTION: move failed for %s in %s: %v", uid, gameID, err)
		}
	case game.ActionSkip:
		ts.skipTurn(ctx, gameID, uid, token)
	}
}

// skipTurn advances past uid without consuming a move.
func (ts *TurnService) skipTurn(ctx context.Context, gameID, uid string, token int64) {
	updated, err := ts.store.UpdateGame(ctx, gameID, func(g *models.Game) error {
		if g.State != models.GameStateActive || g.Turn != uid {
			return errStale
		}
		if token != 0 && g.LastMoveAt != token {
			return errStale
		}
		g.Turn = game.NextTurnUID(g, uid)
		g.TurnPhase = models.PhaseWaitingRoll
		g.ConsecutiveSixes = 0
		ts.stampTurn(g, time.Now().UnixMilli())
		return nil
	})
	if errors.Is(err, errStale) || err != nil || updated == nil {
		return
	}
	ts.notifyPlayers(updated, "turn_skipped", map[string]any{"game_id": gameID, "uid": uid})
	ts.scheduleWatchers(updated)
}

// --------------------------------------------------
// Completion & sweeps
// --------------------------------------------------

// finishGame settles a terminal session: pays out winners exactly once,
// resets status pointers and retires the table. Idempotent; duplicate
// completion deliveries are no-ops.
func (ts *TurnService) finishGame(ctx context.Context, g *models.Game) {
	first, err := ts.store.ClaimPayout(ctx, g.ID)
	if err != nil {
		log.Printf("PAYOUT: guard check failed for %s: %v", g.ID, err)
		return
	}
	if !first {
		return
	}

	if g.State == models.GameStateCompleted && g.WinnerUID != "" {
		ts.payout(ctx, g)
	}

	// Bookkeeping: players back to idle, table closed, sweep set pruned.
	now := time.Now().UnixMilli()
	for uid := range g.Players {
		if models.IsBot(uid) {
			continue
		}
		if err := ts.store.SetGameStatus(ctx, uid, &models.GameStatus{Status: "idle", UpdatedAt: now}); err != nil {
			log.Printf("FINISH: failed to reset game status for %s: %v", uid, err)
		}
		if err := ts.store.SetQueueStatus(ctx, uid, &models.QueueStatus{Status: "idle", UpdatedAt: now}); err != nil {
			log.Printf("FINISH: failed to reset queue status for %s: %v", uid, err)
		}
	}
	if table, err := ts.store.GetTable(ctx, g.TableID); err == nil && table != nil {
		table.Status = "completed"
		if err := ts.store.setJSON(ctx, fmt.Sprintf(KeyTable, table.ID), table, TTLGame); err != nil {
			log.Printf("FINISH: failed to close table %s: %v", table.ID, err)
		}
	}
	ts.store.removeActiveGame(ctx, g.ID)

	ts.notifyPlayers(g, "game_completed", map[string]any{
		"game_id": g.ID, "winner_uid": g.WinnerUID, "reason": g.WinReason, "state": g.State,
	})
}

// payout moves the prize pool to the winner(s). 2-seat: stake*2 minus
// rake to the winner. Team: stake*4 minus rake split evenly across the
// winning team. Bot seats never receive funds.
func (ts *TurnService) payout(ctx context.Context, g *models.Game) {
	winners := []string{g.WinnerUID}
	pool := g.Stake * int64(len(g.Players))

	if g.Mode == models.ModeTeam {
		winnerTeam := g.Players[g.WinnerUID].Team
		if winnerTeam == 0 {
			log.Printf("PAYOUT: winner %s has no team in %s, skipping", g.WinnerUID, g.ID)
			return
		}
		winners = winners[:0]
		for uid, p := range g.Players {
			if p.Team == winnerTeam {
				winners = append(winners, uid)
			}
		}
	}

	net := pool - int64(float64(pool)*g.Rake)
	share := net / int64(len(winners))

	for _, uid := range winners {
		if models.IsBot(uid) {
			continue
		}
		err := ts.ledger.ApplyDelta(ctx, uid, +share, models.CurrencyGold, models.TransactionTypeWinPayout, TxOptions{
			GameID:  g.ID,
			TableID: g.TableID,
			Meta:    map[string]string{"reason": g.WinReason},
		})
		if err != nil {
			log.Printf("PAYOUT_CRITICAL: failed to credit %d gold to %s for %s: %v", share, uid, g.ID, err)
			continue
		}
		log.Printf("PAYOUT: %s got %d gold for %s", uid, share, g.ID)
	}

	// Record the result on the players' shared activity stream. Never
	// blocks the payout.
	var humans []string
	for uid := range g.Players {
		if !models.IsBot(uid) {
			humans = append(humans, uid)
		}
	}
	if g.Mode != models.ModeTeam && len(humans) == 2 {
		ts.notifier.PostActivity(humans, "game_result", map[string]any{
			"game_id": g.ID, "winner_uid": g.WinnerUID, "mode": g.Mode, "stake": g.Stake,
		})
	}
}

// SweepHardTimeouts force-completes active sessions whose last update
// is older than the configured ceiling, awarding the win to a player
// other than the stalled turn holder. A coarse anti-stall net on top of
// the per-turn deadlines.
func (ts *TurnService) SweepHardTimeouts(ctx context.Context) {
	ids, err := ts.store.ActiveGameIDs(ctx)
	if err != nil {
		log.Printf("TIMEOUT_SWEEP: failed to list active games: %v", err)
		return
	}
	cutoff := time.Now().UnixMilli() - ts.cfg.GameTimeout.Milliseconds()

	for _, id := range ids {
		g, err := ts.store.GetGame(ctx, id)
		if err != nil {
			continue
		}
		if g == nil {
			ts.store.removeActiveGame(ctx, id)
			continue
		}
		if g.State != models.GameStateActive {
			// A finished game still in the set means the process died
			// between the state write and settlement. The payout guard
			// makes re-settling safe.
			ts.finishGame(ctx, g)
			ts.store.removeActiveGame(ctx, id)
			continue
		}
		if g.UpdatedAt > cutoff {
			continue
		}

		updated, err := ts.store.UpdateGame(ctx, id, func(g *models.Game) error {
			if g.State != models.GameStateActive {
				return errStale
			}
			loser := g.Turn
			winner := ""
			for uid, p := range g.Players {
				if uid != loser && p.Status == models.SeatActive {
					winner = uid
					break
				}
			}
			if winner == "" {
				g.State = models.GameStateAborted
				return nil
			}
			g.State = models.GameStateCompleted
			g.WinnerUID = winner
			g.LoserUID = loser
			g.WinReason = "hard_timeout"
			return nil
		})
		if errors.Is(err, errStale) || err != nil || updated == nil {
			continue
		}
		log.Printf("TIMEOUT_SWEEP: game %s timed out, winner %s", id, updated.WinnerUID)
		ts.finishGame(ctx, updated)
	}
}

func (ts *TurnService) notifyPlayers(g *models.Game, kind string, payload map[string]any) {
	for uid := range g.Players {
		if models.IsBot(uid) {
			continue
		}
		ts.notifier.NotifyUser(uid, kind, payload)
	}
}

package services

import (
	"context"
	"log"
	"time"

	"ludo-arena-backend/internal/apperr"
	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"
)

// pairing lock names, one per strategy
const (
	lockPair2P   = "pair:2p"
	lockPairSolo = "pair:solo"
	lockPairTeam = "pair:team"
)

// Matchmaker owns the waiting queues: enqueue, leave, the three pairing
// strategies and the timeout sweeps. All pairing runs under a best
// effort lock so concurrent sweeps do not fight over the same entries;
// the claim primitives stay correct even if the lock is lost.
type Matchmaker struct {
	store    *RedisService
	queue    *QueueManager
	ledger   *Ledger
	builder  *GameBuilder
	turns    *TurnService
	cfg      *config.Config
	notifier Notifier
}

func NewMatchmaker(store *RedisService, queue *QueueManager, ledger *Ledger, builder *GameBuilder, turns *TurnService, cfg *config.Config, notifier Notifier) *Matchmaker {
	return &Matchmaker{store: store, queue: queue, ledger: ledger, builder: builder, turns: turns, cfg: cfg, notifier: notifier}
}

// --------------------------------------------------
// Enqueue / leave
// --------------------------------------------------

// Enqueue places uid in the waiting queue for mode. Solo players who
// want a team game enqueue under ModeTeam and get paired into a
// TeamTicket first. Funds are only checked here, not reserved; the
// debit happens when a match forms.
func (m *Matchmaker) Enqueue(ctx context.Context, uid string, mode models.Mode, name, avatar string) (*models.QueueEntry, error) {
	if mode != models.ModeTwoPlayer && mode != models.ModeTeam {
		return nil, apperr.Newf(apperr.InvalidArgument, "cannot queue for mode %q", mode)
	}

	stake := m.cfg.StakeFor(mode)
	w, err := m.ledger.GetWallet(ctx, uid)
	if err != nil {
		return nil, err
	}
	if w.Gold < stake {
		m.setQueueStatus(ctx, uid, &models.QueueStatus{Status: "insufficient_funds", Reason: "not enough gold"})
		return nil, apperr.New(apperr.FailedPrecondition, "insufficient funds")
	}
	if mode == models.ModeTeam && w.Gems < m.cfg.GemFee {
		m.setQueueStatus(ctx, uid, &models.QueueStatus{Status: "insufficient_funds", Reason: "not enough gems"})
		return nil, apperr.New(apperr.FailedPrecondition, "insufficient funds")
	}

	e := &models.QueueEntry{
		ID:         models.GenerateEntryID(),
		UID:        uid,
		Stake:      stake,
		Name:       name,
		Avatar:     avatar,
		EnqueuedAt: time.Now().UnixMilli(),
	}
	if err := m.store.PushQueueEntry(ctx, mode, e); err != nil {
		return nil, err
	}

	status := "queued"
	if mode == models.ModeTeam {
		status = "queued_solo"
	}
	m.setQueueStatus(ctx, uid, &models.QueueStatus{Status: status, EntryID: e.ID})
	log.Printf("QUEUE_JOIN: %s joined %s queue (entry %s)", uid, mode, e.ID)
	return e, nil
}

// LeaveQueue removes uid from whatever queue their status points at and
// reports whether anything was actually removed. Not being queued is a
// normal outcome, not an error. Leaving a formed team ticket dissolves
// it; the abandoned partner is re-enqueued as a solo player so they
// keep their place in line.
func (m *Matchmaker) LeaveQueue(ctx context.Context, uid string) (bool, error) {
	st, err := m.store.GetQueueStatus(ctx, uid)
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, nil
	}

	removed := false
	switch st.Status {
	case "queued":
		e, err := m.queue.ClaimEntry(ctx, models.ModeTwoPlayer, st.EntryID, uid)
		if err != nil {
			return false, err
		}
		removed = e != nil
	case "queued_solo":
		e, err := m.queue.ClaimEntry(ctx, models.ModeTeam, st.EntryID, uid)
		if err != nil {
			return false, err
		}
		removed = e != nil
	case "queued_team":
		t, err := m.queue.ClaimTicket(ctx, st.TicketID)
		if err != nil {
			return false, err
		}
		if t != nil {
			m.dissolveTicket(ctx, t, uid)
			removed = true
		}
	default:
		return false, nil
	}

	if removed {
		m.setQueueStatus(ctx, uid, &models.QueueStatus{Status: "left"})
		log.Printf("QUEUE_LEAVE: %s left the queue", uid)
	}
	return removed, nil
}

// dissolveTicket handles one member walking out of a claimed ticket.
func (m *Matchmaker) dissolveTicket(ctx context.Context, t *models.TeamTicket, leaver string) {
	partner := t.P1
	partnerStake := t.P1Stake
	if partner == leaver {
		partner = t.P2
		partnerStake = t.P2Stake
	}
	if models.IsBot(partner) {
		return
	}

	e := &models.QueueEntry{
		ID:         models.GenerateEntryID(),
		UID:        partner,
		Stake:      partnerStake,
		EnqueuedAt: time.Now().UnixMilli(),
	}
	if err := m.store.PushQueueEntry(ctx, models.ModeTeam, e); err != nil {
		log.Printf("QUEUE_LEAVE: failed to requeue partner %s: %v", partner, err)
		return
	}
	m.setQueueStatus(ctx, partner, &models.QueueStatus{Status: "queued_solo", EntryID: e.ID, Reason: "partner_left"})
	m.notifier.NotifyUser(partner, "partner_left", map[string]any{"ticket_id": t.ID})
}

// --------------------------------------------------
// Pairing strategies
// --------------------------------------------------

// TriggerPairing runs the pairing strategy for mode until no more
// matches can be formed. Called after every enqueue and from the
// periodic sweep.
func (m *Matchmaker) TriggerPairing(ctx context.Context, mode models.Mode) {
	switch mode {
	case models.ModeTwoPlayer:
		m.queue.WithLock(ctx, lockPair2P, func(ctx context.Context) error {
			for m.pairTwoPlayers(ctx) {
			}
			return nil
		})
	case models.ModeTeam:
		m.queue.WithLock(ctx, lockPairSolo, func(ctx context.Context) error {
			for m.pairSolos(ctx) {
			}
			return nil
		})
		m.queue.WithLock(ctx, lockPairTeam, func(ctx context.Context) error {
			for m.pairTeams(ctx) {
			}
			return nil
		})
	}
}

// pairTwoPlayers matches the two oldest distinct players in the 2p
// queue. Returns true if a match attempt consumed entries, so the
// caller loops until the queue runs dry.
func (m *Matchmaker) pairTwoPlayers(ctx context.Context) bool {
	entries, err := m.store.OldestQueueEntries(ctx, models.ModeTwoPlayer, 20)
	if err != nil {
		log.Printf("PAIRING_2P: failed to read queue: %v", err)
		return false
	}
	entries = dedupeByUID(entries)
	if len(entries) < 2 {
		return false
	}

	e1, err := m.queue.ClaimEntry(ctx, models.ModeTwoPlayer, entries[0].ID, entries[0].UID)
	if err != nil || e1 == nil {
		return err == nil // a lost claim means someone else is pairing; retry
	}
	e2, err := m.queue.ClaimEntry(ctx, models.ModeTwoPlayer, entries[1].ID, entries[1].UID)
	if err != nil || e2 == nil {
		m.queue.RestoreEntry(ctx, models.ModeTwoPlayer, e1)
		return err == nil
	}

	return m.startTwoPlayerGame(ctx, e1, e2)
}

// startTwoPlayerGame collects both stakes and builds the session. A
// failed debit refunds whoever already paid and restores both entries
// to the queue; returning false there stops the pairing loop, so a
// broke player at the queue head cannot spin it. They are told why and
// the stale sweep removes them if they never top up.
func (m *Matchmaker) startTwoPlayerGame(ctx context.Context, e1, e2 *models.QueueEntry) bool {
	players := []models.StakedPlayer{{UID: e1.UID, Stake: e1.Stake}, {UID: e2.UID, Stake: e2.Stake}}
	failed, err := m.collectStakes(ctx, players, 0, "2p_match")
	if err != nil {
		log.Printf("PAIRING_2P: stake debit failed for %s, restoring both: %v", failed, err)
		m.queue.RestoreEntry(ctx, models.ModeTwoPlayer, e1)
		m.queue.RestoreEntry(ctx, models.ModeTwoPlayer, e2)
		m.notifier.NotifyUser(failed, "match_failed", map[string]any{"reason": "insufficient_funds"})
		return false
	}

	seats := []SeatAssignment{
		{UID: e1.UID, Seat: 0, Name: e1.Name},
		{UID: e2.UID, Seat: 2, Name: e2.Name},
	}
	g, err := m.builder.CreateActiveGame(ctx, models.ModeTwoPlayer, e1.Stake, seats)
	if err != nil {
		log.Printf("PAIRING_2P: build failed, rolling back: %v", err)
		m.ledger.refundAll(ctx, players, models.CurrencyGold, "build_failed")
		m.queue.RestoreEntry(ctx, models.ModeTwoPlayer, e1)
		m.queue.RestoreEntry(ctx, models.ModeTwoPlayer, e2)
		return false
	}
	log.Printf("PAIRING_2P: matched %s vs %s -> %s", e1.UID, e2.UID, g.ID)
	m.turns.Activate(g)
	return true
}

// pairSolos folds the two oldest solo players into a team ticket.
func (m *Matchmaker) pairSolos(ctx context.Context) bool {
	entries, err := m.store.OldestQueueEntries(ctx, models.ModeTeam, 20)
	if err != nil {
		log.Printf("PAIRING_SOLO: failed to read queue: %v", err)
		return false
	}
	entries = dedupeByUID(entries)
	if len(entries) < 2 {
		return false
	}

	e1, err := m.queue.ClaimEntry(ctx, models.ModeTeam, entries[0].ID, entries[0].UID)
	if err != nil || e1 == nil {
		return err == nil
	}
	e2, err := m.queue.ClaimEntry(ctx, models.ModeTeam, entries[1].ID, entries[1].UID)
	if err != nil || e2 == nil {
		m.queue.RestoreEntry(ctx, models.ModeTeam, e1)
		return err == nil
	}

	t := &models.TeamTicket{
		ID:        models.GenerateTeamID(),
		P1:        e1.UID,
		P2:        e2.UID,
		P1Stake:   e1.Stake,
		P2Stake:   e2.Stake,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.store.PushTeamTicket(ctx, t); err != nil {
		log.Printf("PAIRING_SOLO: failed to write ticket, restoring: %v", err)
		m.queue.RestoreEntry(ctx, models.ModeTeam, e1)
		m.queue.RestoreEntry(ctx, models.ModeTeam, e2)
		return false
	}

	m.setQueueStatus(ctx, e1.UID, &models.QueueStatus{Status: "queued_team", TicketID: t.ID, TeammateName: e2.Name})
	m.setQueueStatus(ctx, e2.UID, &models.QueueStatus{Status: "queued_team", TicketID: t.ID, TeammateName: e1.Name})
	m.notifier.NotifyUser(e1.UID, "teammate_found", map[string]any{"ticket_id": t.ID, "teammate": e2.Name})
	m.notifier.NotifyUser(e2.UID, "teammate_found", map[string]any{"ticket_id": t.ID, "teammate": e1.Name})
	log.Printf("PAIRING_SOLO: ticket %s formed (%s + %s)", t.ID, e1.UID, e2.UID)
	return true
}

// pairTeams matches the two oldest tickets into a 4-seat game. Ticket
// one takes seats 0 and 2 as team 1, ticket two takes 1 and 3 as team
// 2, so turn order alternates between the teams.
func (m *Matchmaker) pairTeams(ctx context.Context) bool {
	tickets, err := m.store.OldestTeamTickets(ctx, 10)
	if err != nil {
		log.Printf("PAIRING_TEAM: failed to read tickets: %v", err)
		return false
	}
	if len(tickets) < 2 {
		return false
	}

	t1, err := m.queue.ClaimTicket(ctx, tickets[0].ID)
	if err != nil || t1 == nil {
		return err == nil
	}
	t2, err := m.queue.ClaimTicket(ctx, tickets[1].ID)
	if err != nil || t2 == nil {
		m.queue.RestoreTicket(ctx, t1)
		return err == nil
	}

	m.startTeamGame(ctx, t1, t2)
	return true
}

func (m *Matchmaker) startTeamGame(ctx context.Context, t1, t2 *models.TeamTicket) {
	players := append(t1.RealPlayers(), t2.RealPlayers()...)
	failed, err := m.collectStakes(ctx, players, m.cfg.GemFee, "team_match")
	if err != nil {
		// The funded ticket goes back in line. The ticket with the
		// broke player dissolves instead of looping forever; their
		// partner re-enters the solo queue.
		broke, kept := t1, t2
		if failed == t2.P1 || failed == t2.P2 {
			broke, kept = t2, t1
		}
		m.queue.RestoreTicket(ctx, kept)
		m.rejectUnfunded(ctx, failed)
		m.dissolveTicket(ctx, broke, failed)
		return
	}

	seats := []SeatAssignment{
		{UID: t1.P1, Seat: 0, Team: 1},
		{UID: t2.P1, Seat: 1, Team: 2},
		{UID: t1.P2, Seat: 2, Team: 1},
		{UID: t2.P2, Seat: 3, Team: 2},
	}
	stake := m.cfg.StakeFor(models.ModeTeam)
	g, err := m.builder.CreateActiveGame(ctx, models.ModeTeam, stake, seats)
	if err != nil {
		log.Printf("PAIRING_TEAM: build failed, rolling back: %v", err)
		m.refundStakes(ctx, players, m.cfg.GemFee, "build_failed")
		m.queue.RestoreTicket(ctx, t1)
		m.queue.RestoreTicket(ctx, t2)
		return
	}
	log.Printf("PAIRING_TEAM: matched tickets %s vs %s -> %s", t1.ID, t2.ID, g.ID)
	m.turns.Activate(g)
}

// --------------------------------------------------
// Timeout sweeps
// --------------------------------------------------

// ProcessQueueTimeouts backfills long waits with bot opponents so no
// one idles forever. Stakes are collected before the bot game is built;
// a player who can no longer afford the stake is dropped, never put
// into a game they did not pay for.
func (m *Matchmaker) ProcessQueueTimeouts(ctx context.Context) {
	now := time.Now().UnixMilli()

	m.queue.WithLock(ctx, lockPair2P, func(ctx context.Context) error {
		m.backfillTwoPlayer(ctx, now-m.cfg.QueueTimeout2P.Milliseconds())
		return nil
	})
	m.queue.WithLock(ctx, lockPairSolo, func(ctx context.Context) error {
		m.backfillSolo(ctx, now-m.cfg.QueueTimeoutSolo.Milliseconds())
		return nil
	})
	m.queue.WithLock(ctx, lockPairTeam, func(ctx context.Context) error {
		// Partial tickets formed by the solo backfill may complete a
		// pair immediately.
		for m.pairTeams(ctx) {
		}
		m.backfillTeam(ctx, now-m.cfg.QueueTimeoutTeam.Milliseconds())
		return nil
	})
}

func (m *Matchmaker) backfillTwoPlayer(ctx context.Context, cutoff int64) {
	entries, err := m.store.QueueEntriesOlderThan(ctx, models.ModeTwoPlayer, cutoff)
	if err != nil {
		log.Printf("BACKFILL_2P: failed to read queue: %v", err)
		return
	}
	for _, cand := range entries {
		e, err := m.queue.ClaimEntry(ctx, models.ModeTwoPlayer, cand.ID, cand.UID)
		if err != nil || e == nil {
			continue
		}
		players := []models.StakedPlayer{{UID: e.UID, Stake: e.Stake}}
		if _, err := m.collectStakes(ctx, players, 0, "2p_bot_match"); err != nil {
			m.rejectUnfunded(ctx, e.UID)
			continue
		}
		seats := []SeatAssignment{
			{UID: e.UID, Seat: 0, Name: e.Name},
			{UID: models.BotUID, Seat: 2},
		}
		g, err := m.builder.CreateActiveGame(ctx, models.ModeTwoPlayer, e.Stake, seats)
		if err != nil {
			log.Printf("BACKFILL_2P: build failed, rolling back: %v", err)
			m.ledger.refundAll(ctx, players, models.CurrencyGold, "build_failed")
			m.queue.RestoreEntry(ctx, models.ModeTwoPlayer, e)
			continue
		}
		log.Printf("BACKFILL_2P: %s matched with bot -> %s", e.UID, g.ID)
		m.turns.Activate(g)
	}
}

// backfillSolo gives a lone solo player a bot teammate by forming a
// partial ticket. The ticket then waits in the normal team queue.
func (m *Matchmaker) backfillSolo(ctx context.Context, cutoff int64) {
	entries, err := m.store.QueueEntriesOlderThan(ctx, models.ModeTeam, cutoff)
	if err != nil {
		log.Printf("BACKFILL_SOLO: failed to read queue: %v", err)
		return
	}
	for _, cand := range entries {
		e, err := m.queue.ClaimEntry(ctx, models.ModeTeam, cand.ID, cand.UID)
		if err != nil || e == nil {
			continue
		}
		t := &models.TeamTicket{
			ID:         models.GenerateTeamID(),
			P1:         e.UID,
			P2:         models.BotUID,
			P1Stake:    e.Stake,
			P2Stake:    0,
			PartialBot: true,
			CreatedAt:  time.Now().UnixMilli(),
		}
		if err := m.store.PushTeamTicket(ctx, t); err != nil {
			log.Printf("BACKFILL_SOLO: failed to write ticket, restoring: %v", err)
			m.queue.RestoreEntry(ctx, models.ModeTeam, e)
			continue
		}
		m.setQueueStatus(ctx, e.UID, &models.QueueStatus{Status: "queued_team", TicketID: t.ID, TeammateName: "Bot"})
		m.notifier.NotifyUser(e.UID, "teammate_found", map[string]any{"ticket_id": t.ID, "teammate": "Bot"})
		log.Printf("BACKFILL_SOLO: %s ticketed with a bot teammate (%s)", e.UID, t.ID)
	}
}

// backfillTeam sends a long-waiting ticket against a full bot team.
func (m *Matchmaker) backfillTeam(ctx context.Context, cutoff int64) {
	tickets, err := m.store.TeamTicketsOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("BACKFILL_TEAM: failed to read tickets: %v", err)
		return
	}
	for _, cand := range tickets {
		t, err := m.queue.ClaimTicket(ctx, cand.ID)
		if err != nil || t == nil {
			continue
		}
		players := t.RealPlayers()
		failed, err := m.collectStakes(ctx, players, m.cfg.GemFee, "team_bot_match")
		if err != nil {
			m.rejectUnfunded(ctx, failed)
			m.dissolveTicket(ctx, t, failed)
			continue
		}
		seats := []SeatAssignment{
			{UID: t.P1, Seat: 0, Team: 1},
			{UID: models.GenerateBotUID(1), Seat: 1, Team: 2},
			{UID: t.P2, Seat: 2, Team: 1},
			{UID: models.GenerateBotUID(3), Seat: 3, Team: 2},
		}
		stake := m.cfg.StakeFor(models.ModeTeam)
		g, err := m.builder.CreateActiveGame(ctx, models.ModeTeam, stake, seats)
		if err != nil {
			log.Printf("BACKFILL_TEAM: build failed, rolling back: %v", err)
			m.refundStakes(ctx, players, m.cfg.GemFee, "build_failed")
			m.queue.RestoreTicket(ctx, t)
			continue
		}
		log.Printf("BACKFILL_TEAM: ticket %s matched against bots -> %s", t.ID, g.ID)
		m.turns.Activate(g)
	}
}

// CleanupStaleQueues drops entries and tickets that outlived every
// timeout, usually clients that vanished mid-wait.
func (m *Matchmaker) CleanupStaleQueues(ctx context.Context) {
	cutoff := time.Now().UnixMilli() - m.cfg.StaleQueueAge.Milliseconds()

	for _, mode := range []models.Mode{models.ModeTwoPlayer, models.ModeTeam} {
		entries, err := m.store.QueueEntriesOlderThan(ctx, mode, cutoff)
		if err != nil {
			continue
		}
		for _, cand := range entries {
			e, err := m.queue.ClaimEntry(ctx, mode, cand.ID, "")
			if err != nil || e == nil {
				continue
			}
			m.setQueueStatus(ctx, e.UID, &models.QueueStatus{Status: "left", Reason: "queue_expired"})
			m.notifier.NotifyUser(e.UID, "queue_expired", map[string]any{"entry_id": e.ID})
			log.Printf("QUEUE_CLEANUP: dropped stale entry %s (%s)", e.ID, e.UID)
		}
	}

	tickets, err := m.store.TeamTicketsOlderThan(ctx, cutoff)
	if err != nil {
		return
	}
	for _, cand := range tickets {
		t, err := m.queue.ClaimTicket(ctx, cand.ID)
		if err != nil || t == nil {
			continue
		}
		for _, p := range t.RealPlayers() {
			m.setQueueStatus(ctx, p.UID, &models.QueueStatus{Status: "left", Reason: "queue_expired"})
			m.notifier.NotifyUser(p.UID, "queue_expired", map[string]any{"ticket_id": t.ID})
		}
		log.Printf("QUEUE_CLEANUP: dropped stale ticket %s", t.ID)
	}
}

// --------------------------------------------------
// Stake collection
// --------------------------------------------------

// collectStakes debits every player's gold stake, plus the gem fee when
// one applies, in order. On any failure everything already taken is
// refunded and the failing player's UID is returned. Bots never pay.
func (m *Matchmaker) collectStakes(ctx context.Context, players []models.StakedPlayer, gemFee int64, reason string) (string, error) {
	var paidGold []models.StakedPlayer
	var paidGems []models.StakedPlayer

	for _, p := range players {
		if models.IsBot(p.UID) {
			continue
		}
		err := m.ledger.ApplyDelta(ctx, p.UID, -p.Stake, models.CurrencyGold, models.TransactionTypeStakeDebit, TxOptions{
			Meta: map[string]string{"reason": reason},
		})
		if err != nil {
			m.ledger.refundAll(ctx, paidGold, models.CurrencyGold, reason+"_rollback")
			m.ledger.refundAll(ctx, paidGems, models.CurrencyGems, reason+"_rollback")
			return p.UID, err
		}
		paidGold = append(paidGold, p)

		if gemFee > 0 {
			err := m.ledger.ApplyDelta(ctx, p.UID, -gemFee, models.CurrencyGems, models.TransactionTypeFeeDebit, TxOptions{
				Meta: map[string]string{"reason": reason},
			})
			if err != nil {
				m.ledger.refundAll(ctx, paidGold, models.CurrencyGold, reason+"_rollback")
				m.ledger.refundAll(ctx, paidGems, models.CurrencyGems, reason+"_rollback")
				return p.UID, err
			}
			paidGems = append(paidGems, models.StakedPlayer{UID: p.UID, Stake: gemFee})
		}
	}
	return "", nil
}

// refundStakes undoes a completed collectStakes after a later failure.
func (m *Matchmaker) refundStakes(ctx context.Context, players []models.StakedPlayer, gemFee int64, reason string) {
	var gems []models.StakedPlayer
	var gold []models.StakedPlayer
	for _, p := range players {
		if models.IsBot(p.UID) {
			continue
		}
		gold = append(gold, p)
		if gemFee > 0 {
			gems = append(gems, models.StakedPlayer{UID: p.UID, Stake: gemFee})
		}
	}
	m.ledger.refundAll(ctx, gold, models.CurrencyGold, reason)
	m.ledger.refundAll(ctx, gems, models.CurrencyGems, reason)
}

func (m *Matchmaker) rejectUnfunded(ctx context.Context, uid string) {
	m.setQueueStatus(ctx, uid, &models.QueueStatus{Status: "insufficient_funds", Reason: "not enough funds at match time"})
	m.notifier.NotifyUser(uid, "match_failed", map[string]any{"reason": "insufficient_funds"})
}

func (m *Matchmaker) setQueueStatus(ctx context.Context, uid string, st *models.QueueStatus) {
	st.UpdatedAt = time.Now().UnixMilli()
	if err := m.store.SetQueueStatus(ctx, uid, st); err != nil {
		log.Printf("QUEUE_STATUS: failed to update for %s: %v", uid, err)
	}
}

// dedupeByUID keeps only the oldest entry per player. Double entries
// happen when a client retries a join before the first ack lands.
func dedupeByUID(entries []*models.QueueEntry) []*models.QueueEntry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.UID] {
			continue
		}
		seen[e.UID] = true
		out = append(out, e)
	}
	return out
}

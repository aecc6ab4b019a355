package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"
	"ludo-arena-backend/internal/services"
)

func newTestConfig() *config.Config {
	return &config.Config{
		RedisURL:         "localhost:6379",
		Stake2P:          100,
		StakeTeam:        100,
		StakePrivate:     100,
		GemFee:           2,
		QueueTimeout2P:   45 * time.Second,
		QueueTimeoutSolo: 40 * time.Second,
		QueueTimeoutTeam: 40 * time.Second,
		StaleQueueAge:    5 * time.Minute,
		TurnTimeout:      15 * time.Second,
		BotTakeover:      10 * time.Second,
		GameTimeout:      15 * time.Minute,
		Rake:             0,
		InitialGold:      5000,
		InitialGems:      50,
	}
}

type testDeps struct {
	store      *services.RedisService
	ledger     *services.Ledger
	queue      *services.QueueManager
	matchmaker *services.Matchmaker
	turns      *services.TurnService
	builder    *services.GameBuilder
	cfg        *config.Config
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	return newTestDepsWithConfig(t, newTestConfig())
}

func newTestDepsWithConfig(t *testing.T, cfg *config.Config) *testDeps {
	t.Helper()
	store := newTestStore(t)
	ledger := services.NewLedger(store)
	queue := services.NewQueueManager(store)
	profiles := services.NewRedisProfileStore(store)
	builder := services.NewGameBuilder(store, cfg, profiles)
	turns := services.NewTurnService(store, ledger, cfg, services.NopNotifier{})
	matchmaker := services.NewMatchmaker(store, queue, ledger, builder, turns, cfg, services.NopNotifier{})
	return &testDeps{store: store, ledger: ledger, queue: queue, matchmaker: matchmaker, turns: turns, builder: builder, cfg: cfg}
}

// drainQueue claims away every waiting entry so a test starts from an
// empty queue even on a shared Redis.
func drainQueue(t *testing.T, d *testDeps, mode models.Mode) {
	t.Helper()
	ctx := context.Background()
	entries, err := d.store.OldestQueueEntries(ctx, mode, 100)
	if err != nil {
		t.Fatalf("Failed to read queue: %v", err)
	}
	for _, e := range entries {
		if _, err := d.queue.ClaimEntry(ctx, mode, e.ID, ""); err != nil {
			t.Fatalf("Failed to drain entry %s: %v", e.ID, err)
		}
	}
}

// A player who passes the enqueue funds check but spends their gold
// before pairing must not end up in a game. The funded opponent is
// refunded and both entries go back in the queue; the pairing attempt
// stops instead of retrying the same broke pair.
func TestPairingRollsBackWhenStakeFails(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	drainQueue(t, d, models.ModeTwoPlayer)

	rich := testUID("test_rich")
	broke := testUID("test_broke")
	for _, uid := range []string{rich, broke} {
		if _, err := d.ledger.CreateWallet(ctx, uid, 1000, 10); err != nil {
			t.Fatalf("Failed to seed wallet: %v", err)
		}
	}

	if _, err := d.matchmaker.Enqueue(ctx, rich, models.ModeTwoPlayer, "Rich", ""); err != nil {
		t.Fatalf("Enqueue rich failed: %v", err)
	}
	if _, err := d.matchmaker.Enqueue(ctx, broke, models.ModeTwoPlayer, "Broke", ""); err != nil {
		t.Fatalf("Enqueue broke failed: %v", err)
	}

	// Drain the second wallet between enqueue and pairing.
	err := d.ledger.ApplyDelta(ctx, broke, -1000, models.CurrencyGold, models.TransactionTypeAdjustment, services.TxOptions{})
	if err != nil {
		t.Fatalf("Failed to drain wallet: %v", err)
	}

	d.matchmaker.TriggerPairing(ctx, models.ModeTwoPlayer)

	w, err := d.ledger.GetWallet(ctx, rich)
	if err != nil {
		t.Fatalf("Failed to read wallet: %v", err)
	}
	if w.Gold != 1000 {
		t.Errorf("Funded player should be made whole, got %d gold", w.Gold)
	}

	gs, err := d.store.GetGameStatus(ctx, rich)
	if err != nil {
		t.Fatalf("Failed to read game status: %v", err)
	}
	if gs != nil && gs.Status == "playing" {
		t.Error("No game should have been created")
	}

	// Both entries are back in line, the broke player's included.
	entries, err := d.store.OldestQueueEntries(ctx, models.ModeTwoPlayer, 10)
	if err != nil {
		t.Fatalf("Failed to read queue: %v", err)
	}
	waiting := make(map[string]bool, len(entries))
	for _, e := range entries {
		waiting[e.UID] = true
	}
	if !waiting[rich] || !waiting[broke] {
		t.Errorf("Both entries should be restored, queue holds %v", waiting)
	}

	// Leave cleans up the restored entries.
	for _, uid := range []string{rich, broke} {
		removed, err := d.matchmaker.LeaveQueue(ctx, uid)
		if err != nil {
			t.Fatalf("LeaveQueue failed for %s: %v", uid, err)
		}
		if !removed {
			t.Errorf("%s should still have been queued", uid)
		}
	}
}

// Leaving without ever queueing is a normal no-op, not an error.
func TestLeaveQueueWhenNotQueued(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()

	removed, err := d.matchmaker.LeaveQueue(ctx, testUID("test_idler"))
	if err != nil {
		t.Fatalf("LeaveQueue failed: %v", err)
	}
	if removed {
		t.Error("Nothing should have been removed for an idle player")
	}
}

// Hammering the pairing trigger from many goroutines must never put a
// player into two sessions or debit a stake twice; the claim primitives
// hold even when the advisory lock is contended.
func TestConcurrentPairingNeverDoubleMatches(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	drainQueue(t, d, models.ModeTwoPlayer)

	const n = 6
	uids := make([]string, n)
	for i := range uids {
		uids[i] = testUID(fmt.Sprintf("test_flood%d", i))
		if _, err := d.ledger.CreateWallet(ctx, uids[i], 1000, 10); err != nil {
			t.Fatalf("Failed to seed wallet: %v", err)
		}
		if _, err := d.matchmaker.Enqueue(ctx, uids[i], models.ModeTwoPlayer, fmt.Sprintf("P%d", i), ""); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.matchmaker.TriggerPairing(ctx, models.ModeTwoPlayer)
		}()
	}
	wg.Wait()

	games := make(map[string]bool)
	pointedAt := make(map[string]string, n)
	for _, uid := range uids {
		gs, err := d.store.GetGameStatus(ctx, uid)
		if err != nil {
			t.Fatalf("Failed to read game status for %s: %v", uid, err)
		}
		if gs == nil || gs.Status != "playing" || gs.GameID == "" {
			t.Fatalf("%s was not paired: %+v", uid, gs)
		}
		pointedAt[uid] = gs.GameID
		games[gs.GameID] = true
	}
	if len(games) != n/2 {
		t.Errorf("Expected %d sessions, got %d", n/2, len(games))
	}

	seated := 0
	for gameID := range games {
		g, err := d.store.GetGame(ctx, gameID)
		if err != nil || g == nil {
			t.Fatalf("Failed to read game %s: %v", gameID, err)
		}
		if len(g.Players) != 2 {
			t.Errorf("Game %s has %d players", gameID, len(g.Players))
		}
		for uid := range g.Players {
			if pointedAt[uid] != gameID {
				t.Errorf("%s is seated in %s but points at %s", uid, gameID, pointedAt[uid])
			}
			seated++
		}
	}
	if seated != n {
		t.Errorf("Expected %d seats total, got %d", n, seated)
	}

	// Exactly one stake debit each.
	for _, uid := range uids {
		w, err := d.ledger.GetWallet(ctx, uid)
		if err != nil {
			t.Fatalf("Failed to read wallet for %s: %v", uid, err)
		}
		if w.Gold != 900 {
			t.Errorf("%s should hold 1000 - 100 stake = 900 gold, got %d", uid, w.Gold)
		}
	}
}

// Forfeiting a 2-seat game hands the whole pot to the opponent, exactly
// once.
func TestForfeitPaysOutOnce(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()

	quitter := testUID("test_quitter")
	winner := testUID("test_winner")
	for _, uid := range []string{quitter, winner} {
		if _, err := d.ledger.CreateWallet(ctx, uid, 1000, 10); err != nil {
			t.Fatalf("Failed to seed wallet: %v", err)
		}
		if err := d.ledger.ApplyDelta(ctx, uid, -100, models.CurrencyGold, models.TransactionTypeStakeDebit, services.TxOptions{}); err != nil {
			t.Fatalf("Failed to collect stake: %v", err)
		}
	}

	g, err := d.builder.CreateActiveGame(ctx, models.ModeTwoPlayer, 100, []services.SeatAssignment{
		{UID: quitter, Seat: 0, Name: "Quitter"},
		{UID: winner, Seat: 2, Name: "Winner"},
	})
	if err != nil {
		t.Fatalf("Failed to build game: %v", err)
	}

	result, err := d.turns.Forfeit(ctx, g.ID, quitter)
	if err != nil {
		t.Fatalf("Forfeit failed: %v", err)
	}
	if result != "loss" {
		t.Errorf("Expected result loss, got %s", result)
	}

	w, err := d.ledger.GetWallet(ctx, winner)
	if err != nil {
		t.Fatalf("Failed to read winner wallet: %v", err)
	}
	if w.Gold != 1100 {
		t.Errorf("Winner should hold 900 + 200 pot = 1100 gold, got %d", w.Gold)
	}

	// A second completion delivery must not pay again.
	final, err := d.store.GetGame(ctx, g.ID)
	if err != nil || final == nil {
		t.Fatalf("Failed to re-read game: %v", err)
	}
	if final.State != models.GameStateCompleted || final.WinnerUID != winner {
		t.Fatalf("Game not completed as expected: %+v", final)
	}
	if _, err := d.turns.Forfeit(ctx, g.ID, winner); err == nil {
		t.Error("Forfeit on a completed game should fail")
	}
	w, _ = d.ledger.GetWallet(ctx, winner)
	if w.Gold != 1100 {
		t.Errorf("Duplicate completion changed the balance: %d", w.Gold)
	}
}

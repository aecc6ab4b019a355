package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ludo-arena-backend/internal/apperr"
	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/models"
	"ludo-arena-backend/internal/services"
)

func newTestStore(t *testing.T) *services.RedisService {
	t.Helper()
	cfg := &config.Config{
		RedisURL:  "localhost:6379",
		RedisPass: "",
		RedisDB:   0,
	}
	store, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testUID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestWalletLifecycle(t *testing.T) {
	store := newTestStore(t)
	ledger := services.NewLedger(store)
	ctx := context.Background()
	uid := testUID("test_wallet")

	created, err := ledger.CreateWallet(ctx, uid, 5000, 50)
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	if !created {
		t.Fatal("Expected wallet to be created")
	}

	// Second creation must be a no-op.
	created, err = ledger.CreateWallet(ctx, uid, 99999, 999)
	if err != nil {
		t.Fatalf("Second create failed: %v", err)
	}
	if created {
		t.Error("Wallet should only be seeded once")
	}

	w, err := ledger.GetWallet(ctx, uid)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if w.Gold != 5000 || w.Gems != 50 {
		t.Errorf("Expected 5000 gold / 50 gems, got %d / %d", w.Gold, w.Gems)
	}

	err = ledger.ApplyDelta(ctx, uid, -1500, models.CurrencyGold, models.TransactionTypeStakeDebit, services.TxOptions{
		GameID: "game_test", Meta: map[string]string{"reason": "test"},
	})
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	err = ledger.ApplyDelta(ctx, uid, 3000, models.CurrencyGold, models.TransactionTypeWinPayout, services.TxOptions{GameID: "game_test"})
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	w, err = ledger.GetWallet(ctx, uid)
	if err != nil {
		t.Fatalf("Failed to re-read wallet: %v", err)
	}
	if w.Gold != 6500 {
		t.Errorf("Expected 6500 gold after debit+credit, got %d", w.Gold)
	}

	// Overdraft must fail and leave the balance untouched.
	err = ledger.ApplyDelta(ctx, uid, -999999, models.CurrencyGold, models.TransactionTypeStakeDebit, services.TxOptions{})
	if !apperr.Is(err, apperr.FailedPrecondition) {
		t.Errorf("Expected FailedPrecondition on overdraft, got %v", err)
	}
	w, _ = ledger.GetWallet(ctx, uid)
	if w.Gold != 6500 {
		t.Errorf("Overdraft changed the balance: %d", w.Gold)
	}

	txs, err := ledger.ListTransactions(ctx, uid, 10)
	if err != nil {
		t.Fatalf("Failed to list transactions: %v", err)
	}
	// Two seed credits plus the debit and the payout.
	if len(txs) != 4 {
		t.Errorf("Expected 4 transactions, got %d", len(txs))
	}
	for _, tx := range txs {
		if tx.AfterBalance-tx.BeforeBalance != tx.Amount {
			t.Errorf("Transaction %s arithmetic broken: %d -> %d with amount %d",
				tx.ID, tx.BeforeBalance, tx.AfterBalance, tx.Amount)
		}
	}
}

func TestApplyDeltaMissingWallet(t *testing.T) {
	store := newTestStore(t)
	ledger := services.NewLedger(store)

	err := ledger.ApplyDelta(context.Background(), testUID("test_nobody"), -100,
		models.CurrencyGold, models.TransactionTypeStakeDebit, services.TxOptions{})
	if !apperr.Is(err, apperr.FailedPrecondition) {
		t.Errorf("Missing wallet should read as insufficient funds, got %v", err)
	}
}

func TestQueueClaimSemantics(t *testing.T) {
	store := newTestStore(t)
	queue := services.NewQueueManager(store)
	ctx := context.Background()
	uid := testUID("test_queue")

	e := &models.QueueEntry{
		ID:         models.GenerateEntryID(),
		UID:        uid,
		Stake:      100,
		Name:       "Tester",
		EnqueuedAt: time.Now().UnixMilli(),
	}
	if err := store.PushQueueEntry(ctx, models.ModeTwoPlayer, e); err != nil {
		t.Fatalf("Failed to push entry: %v", err)
	}

	// Wrong owner loses the claim without error.
	got, err := queue.ClaimEntry(ctx, models.ModeTwoPlayer, e.ID, "someone_else")
	if err != nil {
		t.Fatalf("Claim with wrong owner errored: %v", err)
	}
	if got != nil {
		t.Fatal("Claim with wrong owner should be lost")
	}

	got, err = queue.ClaimEntry(ctx, models.ModeTwoPlayer, e.ID, uid)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if got == nil || got.UID != uid {
		t.Fatalf("Expected claimed entry for %s, got %+v", uid, got)
	}

	// The entry is consumed; a second claim is lost.
	got, err = queue.ClaimEntry(ctx, models.ModeTwoPlayer, e.ID, uid)
	if err != nil {
		t.Fatalf("Second claim errored: %v", err)
	}
	if got != nil {
		t.Fatal("Second claim should be lost")
	}

	// Restore puts it back at its original position.
	queue.RestoreEntry(ctx, models.ModeTwoPlayer, e)
	entries, err := store.OldestQueueEntries(ctx, models.ModeTwoPlayer, 100)
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	found := false
	for _, x := range entries {
		if x.ID == e.ID {
			found = true
		}
	}
	if !found {
		t.Error("Restored entry not found in the queue")
	}
	queue.ClaimEntry(ctx, models.ModeTwoPlayer, e.ID, uid)
}

func TestTeamTicketClaim(t *testing.T) {
	store := newTestStore(t)
	queue := services.NewQueueManager(store)
	ctx := context.Background()

	ticket := &models.TeamTicket{
		ID:        models.GenerateTeamID(),
		P1:        testUID("test_t1"),
		P2:        testUID("test_t2"),
		P1Stake:   100,
		P2Stake:   100,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := store.PushTeamTicket(ctx, ticket); err != nil {
		t.Fatalf("Failed to push ticket: %v", err)
	}

	got, err := queue.ClaimTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if got == nil || got.P1 != ticket.P1 {
		t.Fatalf("Expected claimed ticket, got %+v", got)
	}

	got, err = queue.ClaimTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("Second claim errored: %v", err)
	}
	if got != nil {
		t.Fatal("Second ticket claim should be lost")
	}
}

func TestPayoutGuardIdempotence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	gameID := testUID("test_payout")

	first, err := store.ClaimPayout(ctx, gameID)
	if err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	if !first {
		t.Fatal("First payout claim should win")
	}

	second, err := store.ClaimPayout(ctx, gameID)
	if err != nil {
		t.Fatalf("Second claim failed: %v", err)
	}
	if second {
		t.Fatal("Second payout claim must be rejected")
	}
}

func TestQueueStatusRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	uid := testUID("test_status")

	in := &models.QueueStatus{Status: "queued", EntryID: "qe_123", UpdatedAt: time.Now().UnixMilli()}
	if err := store.SetQueueStatus(ctx, uid, in); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	out, err := store.GetQueueStatus(ctx, uid)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if out == nil || out.Status != "queued" || out.EntryID != "qe_123" {
		t.Errorf("Status round trip mismatch: %+v", out)
	}

	missing, err := store.GetQueueStatus(ctx, testUID("test_unknown"))
	if err != nil {
		t.Fatalf("Get for unknown uid errored: %v", err)
	}
	if missing != nil {
		t.Errorf("Unknown uid should have no status, got %+v", missing)
	}
}

package services

import "time"

const (
	KeyQueueEntry   = "queue:%s:entry:%s" // mode, entryID
	KeyQueueIndex   = "queue:%s:index"    // mode; zset score = enqueue ms
	KeyTeamTicket   = "queue:team:ticket:%s"
	KeyTeamIndex    = "queue:team:index"
	KeyPrivateTable = "queue:private:%s" // host uid; one table per host
	KeyLock         = "lock:%s"          // value = acquisition unix ms

	KeyWallet      = "wallet:%s"
	KeyWalletTx    = "wallet:%s:tx:%s"
	KeyWalletTxLog = "wallet:%s:txlog" // zset score = created ms

	KeyGame        = "game:%s"
	KeyTable       = "table:%s"
	KeyActiveGames = "games:active" // set of game IDs swept for hard timeouts
	KeyPayout      = "payout:%s"    // SetNX guard, one payout per game

	KeyQueueStatus = "user:%s:queuestatus"
	KeyGameStatus  = "user:%s:gamestatus"
	KeyProfile     = "user:%s:profile"

	KeyInvite         = "invite:%s"
	KeyPendingInvites = "invites:pending:%s" // guest uid; set of invited host uids

	KeyRateLimit = "ratelimit:%s:%s" // uid, action
)

const (
	TTLGame        = 7 * 24 * time.Hour
	TTLTransaction = 30 * 24 * time.Hour
	TTLPayoutGuard = 7 * 24 * time.Hour
	TTLInvite      = 24 * time.Hour

	LockTTL = 10 * time.Second

	DefaultRateLimitQueueJoins = 10 // per minute
)

package services

// Notifier is the fire-and-forget push channel to connected players.
// Implementations must never block or fail a caller: delivery problems
// are logged and swallowed.
type Notifier interface {
	// NotifyUser pushes one event to a single player.
	NotifyUser(uid, kind string, payload map[string]any)
	// PostActivity records an event on the shared activity stream of a
	// set of players (e.g. the finished-match result in their DM).
	PostActivity(uids []string, kind string, payload map[string]any)
}

// NopNotifier drops everything. Used by tests and offline tools.
type NopNotifier struct{}

func (NopNotifier) NotifyUser(string, string, map[string]any) {}

func (NopNotifier) PostActivity([]string, string, map[string]any) {}

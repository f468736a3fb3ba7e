package notify

// Event type constants for keeper lifecycle and trading events. Operators
// use these in the configured KEEPER_NOTIFY_EVENTS allow-list to select
// which events they want delivered.
const (
	EventKeeperRunning   = "keeper_running"
	EventKeeperDraining  = "keeper_draining"
	EventKeeperStopped   = "keeper_stopped"
	EventLockFailed      = "lock_failed"
	EventCycleError      = "cycle_error"
	EventOrderPlaceError = "order_place_error"
	EventOrderCancelFail = "order_cancel_failed"
	EventFeedExpired     = "feed_expired"
	EventFeedRecovered   = "feed_recovered"
	EventRateLimited     = "rate_limited"
)

package redisx

import "time"

const (
	// Cached GET /items body. Stock only moves on day advance, which
	// deletes this key; the TTL just caps staleness if that ever slips.
	KeyStockList = "stock:list"

	// Dedup for event consumers: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStockList = time.Minute
	TTLDedup     = 48 * time.Hour
)

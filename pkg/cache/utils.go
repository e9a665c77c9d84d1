package cache

import "fmt"

// tradeStatePrefix fronts the canonical Postgres view; every writer and
// reader must build state keys through TradeStateKey so they agree.
const tradeStatePrefix = "trade_state"

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// TradeStateKey is the cache key for one trade's derived state.
func TradeStateKey(tradeID string) string {
	return GenerateKey(tradeStatePrefix, tradeID)
}

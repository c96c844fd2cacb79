package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// IdempotencyKey derives the deterministic order key for one tick. The
// timestamp is truncated to the minute so a retried tick produces the same
// key and the exchange port rejects the duplicate.
func IdempotencyKey(ticker string, tickTime time.Time, decision string) string {
	raw := fmt.Sprintf("%s|%s|%s", ticker, tickTime.UTC().Truncate(time.Minute).Format(time.RFC3339), decision)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

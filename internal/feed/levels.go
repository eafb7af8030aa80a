// Package feed holds what the per-exchange adapters share: normalizing the
// [price, amount] string tuples that depth feeds deliver into domain levels.
package feed

import (
	"fmt"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

// ParseLevels converts raw [price, amount] string tuples into price levels,
// dropping entries with non-positive amount and truncating to depth. Any
// malformed number fails the whole call so the caller can skip the frame;
// entries after the one that finds depth already reached are not parsed.
func ParseLevels(raw [][]string, depth int) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, min(len(raw), depth))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level entry has %d fields, want 2", len(entry))
		}
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", entry[0], err)
		}
		amount, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", entry[1], err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("negative price %q", entry[0])
		}
		// Zero amount means the level was removed.
		if !amount.IsPositive() {
			continue
		}
		if len(levels) == depth {
			break
		}
		levels = append(levels, domain.PriceLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

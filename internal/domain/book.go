package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDepth is the top-of-book depth carried end to end. Feeds truncate
// their snapshots to this many levels per side and the merged summary never
// exceeds it.
const DefaultDepth = 10

// PriceLevel is a single (price, amount) entry of one side of a book.
// An amount of zero means the level has been removed; feeds drop such
// entries before they reach the aggregator.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// ExchangeLevel is a PriceLevel tagged with the exchange it came from.
// The tag survives merging so subscribers can see per-exchange provenance.
type ExchangeLevel struct {
	Exchange string          `json:"exchange"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
}

// ExchangeBook is one normalized top-N snapshot from a single exchange.
// Bids are ordered highest price first, asks lowest price first, each side
// at most DefaultDepth entries.
type ExchangeBook struct {
	Exchange   string       `json:"exchange"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ReceivedAt time.Time    `json:"received_at"`
}

// TradedPair is the ordered currency pair that routes everything: feeds
// subscribe per pair, aggregators run per pair, the registry is keyed by it.
// Comparison is case-sensitive on both components, so (ETH,BTC) != (BTC,ETH).
type TradedPair struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

func (p TradedPair) String() string {
	return p.First + "-" + p.Second
}

// SymbolLower renders the pair the way most exchange wire protocols expect
// it, e.g. (ETH, BTC) -> "ethbtc".
func (p TradedPair) SymbolLower() string {
	return strings.ToLower(p.First + p.Second)
}

// Validate rejects pairs with empty components.
func (p TradedPair) Validate() error {
	if p.First == "" || p.Second == "" {
		return ErrInvalidPair
	}
	return nil
}

// Summary is the consolidated top-of-book across all live sources for one
// pair. Bids are sorted by price descending, asks ascending, each side
// truncated to DefaultDepth. Spread is best ask minus best bid of the
// truncated sides; when either side is empty it is NaN.
type Summary struct {
	Spread float64         `json:"spread"`
	Bids   []ExchangeLevel `json:"bids"`
	Asks   []ExchangeLevel `json:"asks"`
}

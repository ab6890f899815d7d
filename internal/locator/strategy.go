// internal/locator/strategy.go
package locator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xkilldash9x/autocart/api/schemas"
)

// StrategyKind names one way of matching a page element.
type StrategyKind string

const (
	// KindAttr matches id/name/class attribute containment.
	KindAttr StrategyKind = "attr"
	// KindText matches case-insensitive visible text on actionable tags.
	KindText StrategyKind = "text"
	// KindAria matches accessibility role plus aria-label containment.
	KindAria StrategyKind = "aria"
	// KindMarker matches framework test/action markers (data-testid etc).
	KindMarker StrategyKind = "marker"
)

// Strategy is one entry in a role's ordered matching cascade. Lower
// priority runs first; the ordering is a deliberate tie-break, not
// incidental.
type Strategy struct {
	Priority int          `json:"priority"`
	Kind     StrategyKind `json:"kind"`
	Needles  []string     `json:"needles"`
}

// buttonTables maps each button role to its strategy cascade. Needle
// sets follow the phrasing sites actually use; text strategies rank
// above attribute heuristics for roles where labels are more reliable
// than markup, and below for roles where markup is.
var buttonTables = map[schemas.ButtonRole][]Strategy{
	schemas.ButtonAddToCart: {
		{Priority: 1, Kind: KindText, Needles: []string{"add to cart", "add to bag", "add to basket"}},
		{Priority: 2, Kind: KindAttr, Needles: []string{"add-to-cart", "addtocart", "add_to_cart"}},
		{Priority: 3, Kind: KindAria, Needles: []string{"add to cart"}},
		{Priority: 4, Kind: KindMarker, Needles: []string{"add-to-cart", "addtocart"}},
	},
	schemas.ButtonCheckout: {
		{Priority: 1, Kind: KindText, Needles: []string{"checkout", "proceed to"}},
		{Priority: 2, Kind: KindAttr, Needles: []string{"checkout"}},
		{Priority: 3, Kind: KindAria, Needles: []string{"checkout"}},
		{Priority: 4, Kind: KindMarker, Needles: []string{"checkout"}},
	},
	schemas.ButtonViewCart: {
		{Priority: 1, Kind: KindText, Needles: []string{"view cart", "view bag"}},
		{Priority: 2, Kind: KindAttr, Needles: []string{"view-cart", "viewcart"}},
		{Priority: 3, Kind: KindMarker, Needles: []string{"view-cart"}},
	},
	schemas.ButtonPayment: {
		{Priority: 1, Kind: KindText, Needles: []string{"pay", "continue"}},
		{Priority: 2, Kind: KindAttr, Needles: []string{"pay"}},
		{Priority: 3, Kind: KindAria, Needles: []string{"pay"}},
	},
	schemas.ButtonCompleteOrder: {
		{Priority: 1, Kind: KindText, Needles: []string{"place order", "complete order", "submit order"}},
		{Priority: 2, Kind: KindAttr, Needles: []string{"place-order", "placeorder", "complete-order"}},
		{Priority: 3, Kind: KindMarker, Needles: []string{"place-order", "complete-order"}},
	},
}

// Table returns the strategy cascade for a button role, sorted by
// priority. The returned slice is a copy; callers may not mutate the
// table.
func Table(role schemas.ButtonRole) ([]Strategy, error) {
	table, ok := buttonTables[role]
	if !ok {
		return nil, fmt.Errorf("unknown button role: %s", role)
	}
	out := make([]Strategy, len(table))
	copy(out, table)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// encodeTable serializes a cascade for injection into the in-page probe.
func encodeTable(table []Strategy) (string, error) {
	b, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("failed to encode strategy table: %w", err)
	}
	return string(b), nil
}

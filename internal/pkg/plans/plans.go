// Package plans is the static plan catalog: which tiers exist and how many
// metered actions each tier allows per billing period.
package plans

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type ID string

const (
	Free       ID = "FREE"
	Basic      ID = "BASIC"
	Premium    ID = "PREMIUM"
	Enterprise ID = "ENTERPRISE"
)

// Unlimited is the limit sentinel that disables quota checks for a kind.
const Unlimited = -1

// BillingPeriod is the length of one entitlement window.
const BillingPeriod = 30 * 24 * time.Hour

// Kind identifies a metered action.
type Kind string

const (
	KindQuestion Kind = "question"
	KindDocument Kind = "document"
)

// ParseKind normalizes user input into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindQuestion:
		return KindQuestion, nil
	case KindDocument:
		return KindDocument, nil
	default:
		return "", fmt.Errorf("unknown usage kind %q", raw)
	}
}

// Definition is an immutable plan entry.
type Definition struct {
	ID                ID
	Name              string
	DocumentsPerMonth int
	QuestionsPerMonth int
	rank              int
}

// Limit returns the per-period allowance of the given kind.
func (d Definition) Limit(kind Kind) int {
	switch kind {
	case KindDocument:
		return d.DocumentsPerMonth
	case KindQuestion:
		return d.QuestionsPerMonth
	default:
		return 0
	}
}

var catalog = map[ID]Definition{
	Free: {
		ID:                Free,
		Name:              "Free",
		DocumentsPerMonth: 3,
		QuestionsPerMonth: 20,
		rank:              0,
	},
	Basic: {
		ID:                Basic,
		Name:              "Basic",
		DocumentsPerMonth: 20,
		QuestionsPerMonth: 200,
		rank:              1,
	},
	Premium: {
		ID:                Premium,
		Name:              "Premium",
		DocumentsPerMonth: 100,
		QuestionsPerMonth: 1000,
		rank:              2,
	},
	Enterprise: {
		ID:                Enterprise,
		Name:              "Enterprise",
		DocumentsPerMonth: Unlimited,
		QuestionsPerMonth: Unlimited,
		rank:              3,
	},
}

// Lookup returns the definition for id, if it exists.
func Lookup(id string) (Definition, bool) {
	def, ok := catalog[ID(strings.ToUpper(strings.TrimSpace(id)))]
	return def, ok
}

// Resolve returns the definition for id and falls back to FREE for
// anything the catalog does not know.
func Resolve(id string) Definition {
	if def, ok := Lookup(id); ok {
		return def
	}
	return catalog[Free]
}

// Normalize maps arbitrary input onto a catalog ID, defaulting to FREE.
func Normalize(id string) ID {
	return Resolve(id).ID
}

// Rank orders plans from FREE (0) upwards.
func Rank(id string) int {
	return Resolve(id).rank
}

// All returns every plan ordered by rank.
func All() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, def := range catalog {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].rank < defs[j].rank })
	return defs
}

// IsUnlimited reports whether limit is the unlimited sentinel.
func IsUnlimited(limit int) bool {
	return limit == Unlimited
}

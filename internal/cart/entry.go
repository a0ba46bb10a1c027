package cart

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrItemNotFound is returned when a cart operation names a sku the catalog
// does not sell.
var ErrItemNotFound = errors.New("cart item not found")

// MaxEntryCount caps the quantity held on a single cart line.
const MaxEntryCount = 9999

// Entry is one cart line: a sku, a quantity and whether it is selected for
// checkout.
type Entry struct {
	SKUID    int64 `json:"sku_id"`
	Count    int   `json:"count"`
	Selected bool  `json:"selected"`
}

// EntryInput is the validated payload for add and set operations.
type EntryInput struct {
	SKUID    int64 `json:"sku_id" validate:"required,gt=0"`
	Count    int   `json:"count" validate:"required,gte=1,lte=9999"`
	Selected *bool `json:"selected,omitempty"`
}

func (in EntryInput) selected() bool {
	if in.Selected == nil {
		return true
	}
	return *in.Selected
}

// Item is an entry joined with the sku's current catalog data.
type Item struct {
	SKUID    int64           `json:"sku_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Count    int             `json:"count"`
	Selected bool            `json:"selected"`
	Amount   decimal.Decimal `json:"amount"`
}

// Owner identifies whose cart an operation touches. A zero UserID means the
// anonymous cart carried in Token.
type Owner struct {
	UserID int64
	Token  string
}

// Anonymous reports whether the owner is not logged in.
func (o Owner) Anonymous() bool {
	return o.UserID <= 0
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].SKUID < entries[j].SKUID })
}

func entriesFromMap(m map[int64]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

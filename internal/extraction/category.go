package extraction

import "strings"

// CategoryOther is the fallback for anything the model returns that is not
// in the taxonomy.
const CategoryOther = "Other"

// categories is the fixed expense taxonomy, in display order.
var categories = []string{
	"F&B",
	"Transportation",
	"Office Supplies",
	"Utilities",
	"Software",
	CategoryOther,
}

// Categories returns the expense category taxonomy in display order.
func Categories() []string {
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

// CoerceCategory maps a raw category string onto the taxonomy. Matching is
// case-insensitive; anything unrecognized maps to Other. The second return
// value reports whether the input matched a taxonomy entry.
func CoerceCategory(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range categories {
		if strings.EqualFold(raw, c) {
			return c, true
		}
	}
	return CategoryOther, false
}

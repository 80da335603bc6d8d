package model

// Category is a keyword family used to hint at the kind of question asked
type Category string

const (
	CategoryTemporal        Category = "temporal"
	CategorySemantic        Category = "semantic"
	CategoryAggregation     Category = "aggregation"
	CategoryDetailExpansion Category = "detail_expansion"
)

// Categories lists every category in a stable order
var Categories = []Category{
	CategoryTemporal,
	CategorySemantic,
	CategoryAggregation,
	CategoryDetailExpansion,
}

// Hint counts keyword matches per category. It is advisory only.
type Hint map[Category]int

// Has reports whether any keyword of c matched
func (h Hint) Has(c Category) bool {
	return h[c] > 0
}

// Strongest returns the category with the most matches, or "" when nothing
// matched. Ties resolve in Categories order.
func (h Hint) Strongest() Category {
	var best Category
	n := 0
	for _, c := range Categories {
		if h[c] > n {
			best, n = c, h[c]
		}
	}
	return best
}

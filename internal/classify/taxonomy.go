package classify

// Taxonomy is the closed set of topic categories the assistant recognizes.
// Order matters: the first entry is the default fallback category used by
// the lifecycle manager when classification fails entirely.
var Taxonomy = []string{
	"campus",
	"admissions",
	"courses",
	"fees",
	"visa",
	"support",
	"events",
}

// CategoryGeneral is the catch-all bucket for queries outside the taxonomy
// and for classifier failures.
const CategoryGeneral = "general"

// InTaxonomy reports whether category is one of the closed set.
func InTaxonomy(category string) bool {
	for _, c := range Taxonomy {
		if c == category {
			return true
		}
	}
	return false
}

// Coerce maps any classifier output into the taxonomy: in-set values pass
// through, everything else becomes the general category.
func Coerce(category string) string {
	if InTaxonomy(category) {
		return category
	}
	return CategoryGeneral
}

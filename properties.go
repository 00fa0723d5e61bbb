package hab

// propertyMeta describes one inheritable config-node property: the order
// it is processed in during the inheritance walk, and the verbosity level
// at or above which it is shown by Dump.
type propertyMeta struct {
	SortOrder    int
	MinVerbosity int
}

// properties fixes the processing order: name(40), alias_mods(50),
// distros(50), environment(80), aliases(120). Properties without a
// distinguished position sit at the default 100.
var properties = map[string]propertyMeta{
	"name":          {SortOrder: 40},
	"alias_mods":    {SortOrder: 50, MinVerbosity: 3},
	"distros":       {SortOrder: 50},
	"variables":     {SortOrder: 100},
	"inherits":      {SortOrder: 100, MinVerbosity: 2},
	"min_verbosity": {SortOrder: 100},
	"environment":   {SortOrder: 80},
	"aliases":       {SortOrder: 120},
}

// propertyOrder is the stable, sorted (sort-order, name) order of the
// registered properties. The composition in buildFlatConfig does not
// consult it.
var propertyOrder = sortedPropertyNames()

func sortedPropertyNames() []string {
	names := make([]string, 0, len(properties))
	for n := range properties {
		names = append(names, n)
	}
	// Simple insertion sort by (SortOrder, name); the set is tiny and fixed.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0; j-- {
			a, b := names[j-1], names[j]
			if properties[a].SortOrder > properties[b].SortOrder ||
				(properties[a].SortOrder == properties[b].SortOrder && a > b) {
				names[j-1], names[j] = names[j], names[j-1]
			} else {
				break
			}
		}
	}
	return names
}

// checkMinVerbosity reports whether a property (or alias, via the same
// gate) should be visible given the resolver's configured verbosity target.
// A nil target (verbosity disabled) always shows everything.
func checkMinVerbosity(minVerbosity int, current *int) bool {
	if current == nil {
		return true
	}
	return *current >= minVerbosity
}

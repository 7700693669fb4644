package dialect

import "github.com/uptrace/bun/dialect/feature"

var namedFeatures = []struct {
	name string
	f    feature.Feature
}{
	{"returning", feature.InsertReturning},
	{"on-conflict", feature.InsertOnConflict},
	{"on-duplicate-key", feature.InsertOnDuplicateKey},
	{"insert-ignore", feature.InsertIgnore},
	{"if-not-exists", feature.TableNotExists},
	{"cte", feature.CTE},
}

// FeatureNames lists the notable features p supports, in a fixed order.
func FeatureNames(p Provider) []string {
	var out []string
	for _, nf := range namedFeatures {
		if p.HasFeature(nf.f) {
			out = append(out, nf.name)
		}
	}
	return out
}

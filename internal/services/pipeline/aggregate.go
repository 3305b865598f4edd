package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"detectsuite/internal/model"
)

// Count tallies detections per class name. A class id missing from the
// catalog means the detector and catalog disagree and is returned as
// *model.UnknownClassIDError rather than skipped.
func Count(detections []model.Detection, catalog *model.ClassCatalog) (map[string]int, error) {
	counts := make(map[string]int)
	for _, d := range detections {
		name, ok := catalog.Name(d.ClassID)
		if !ok {
			return nil, &model.UnknownClassIDError{ClassID: d.ClassID, CatalogSize: catalog.Len()}
		}
		counts[name]++
	}
	return counts, nil
}

// FormatCounts renders counts as "car: 2, person: 1", sorted by name,
// or "None" when nothing was counted.
func FormatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "None"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %d", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}

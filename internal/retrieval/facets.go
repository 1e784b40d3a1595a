package retrieval

import "gopherai-docqa/internal/model"

// FacetCounts is the per-type and per-page chunk distribution of a scope.
type FacetCounts struct {
	ElementTypes map[string]int `json:"element_types"`
	Pages        map[int]int    `json:"pages"`
}

// CountFacets tallies chunks by element type (untyped chunks under "unknown")
// and by page number (chunks without a page are not counted by page).
func CountFacets(chunks []model.Chunk) FacetCounts {
	counts := FacetCounts{
		ElementTypes: make(map[string]int),
		Pages:        make(map[int]int),
	}
	for i := range chunks {
		counts.ElementTypes[model.DistributionKey(chunks[i].ElementType)]++
		if chunks[i].PageNumber != nil {
			counts.Pages[*chunks[i].PageNumber]++
		}
	}
	return counts
}

package retrieval

import "gopherai-docqa/internal/model"

// SpatialRegion restricts results to chunks on a page whose box intersects
// the query box.
type SpatialRegion struct {
	PageNumber  int               `json:"page_number"`
	BoundingBox model.BoundingBox `json:"bounding_box"`
}

// Facets are ANDed together; values inside one facet are ORed. Empty facets
// do not filter.
type Facets struct {
	ElementTypes  []model.ElementType `json:"element_types,omitempty"`
	PageNumbers   []int               `json:"page_numbers,omitempty"`
	SpatialRegion *SpatialRegion      `json:"spatial_region,omitempty"`
}

func (f Facets) IsEmpty() bool {
	return len(f.ElementTypes) == 0 && len(f.PageNumbers) == 0 && f.SpatialRegion == nil
}

// Filter returns the chunks matching every active facet, preserving input
// order. With no active facet the input slice is returned as is.
func Filter(chunks []model.Chunk, facets Facets) []model.Chunk {
	if facets.IsEmpty() {
		return chunks
	}
	m := newMatcher(facets)
	out := make([]model.Chunk, 0, len(chunks))
	for i := range chunks {
		if m.match(&chunks[i]) {
			out = append(out, chunks[i])
		}
	}
	return out
}

// Matches reports whether a single chunk passes the facets.
func Matches(chunk *model.Chunk, facets Facets) bool {
	if facets.IsEmpty() {
		return true
	}
	return newMatcher(facets).match(chunk)
}

type matcher struct {
	types   map[model.ElementType]struct{}
	pages   map[int]struct{}
	spatial *SpatialRegion
}

func newMatcher(f Facets) matcher {
	m := matcher{spatial: f.SpatialRegion}
	if len(f.ElementTypes) > 0 {
		m.types = make(map[model.ElementType]struct{}, len(f.ElementTypes))
		for _, t := range f.ElementTypes {
			m.types[t] = struct{}{}
		}
	}
	if len(f.PageNumbers) > 0 {
		m.pages = make(map[int]struct{}, len(f.PageNumbers))
		for _, p := range f.PageNumbers {
			m.pages[p] = struct{}{}
		}
	}
	return m
}

func (m matcher) match(c *model.Chunk) bool {
	if m.types != nil {
		if c.ElementType == nil {
			return false
		}
		if _, ok := m.types[*c.ElementType]; !ok {
			return false
		}
	}
	if m.pages != nil {
		if c.PageNumber == nil {
			return false
		}
		if _, ok := m.pages[*c.PageNumber]; !ok {
			return false
		}
	}
	if m.spatial != nil {
		return InRegion(c, *m.spatial)
	}
	return true
}

// InRegion reports whether the chunk is on the region's page and its box
// intersects the region. Chunks without a page or with a missing or
// malformed box never match.
func InRegion(c *model.Chunk, region SpatialRegion) bool {
	if c.PageNumber == nil || *c.PageNumber != region.PageNumber {
		return false
	}
	box := c.Box()
	if box == nil {
		return false
	}
	return region.BoundingBox.Intersects(*box)
}

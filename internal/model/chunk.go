package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk is a contiguous slice of extracted text with optional structural
// metadata. Content and ChunkIndex never change after creation.
type Chunk struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	DocumentID  string         `gorm:"size:36;not null;uniqueIndex:idx_chunks_document_index,priority:1" json:"document_id"`
	ChunkIndex  int            `gorm:"not null;uniqueIndex:idx_chunks_document_index,priority:2" json:"chunk_index"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	TokenCount  *int           `json:"token_count,omitempty"`
	ElementType *ElementType   `gorm:"size:32;index" json:"element_type"`
	PageNumber  *int           `gorm:"index" json:"page_number"`
	BoundingBox datatypes.JSON `json:"-"` // either tuple or object form
	Confidence  *float64       `json:"confidence,omitempty"`
	ElementID   *string        `gorm:"size:128" json:"element_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Box returns the parsed bounding box; nil when absent or malformed.
func (c *Chunk) Box() *BoundingBox {
	if len(c.BoundingBox) == 0 {
		return nil
	}
	b, err := DecodeBoundingBox(c.BoundingBox)
	if err != nil {
		return nil
	}
	return b
}

// SetBox stores the box in canonical object form, or clears it.
func (c *Chunk) SetBox(b *BoundingBox) {
	if b == nil {
		c.BoundingBox = nil
		return
	}
	raw, _ := json.Marshal(b)
	c.BoundingBox = datatypes.JSON(raw)
}

// MarshalJSON exposes the bounding box in canonical form.
func (c Chunk) MarshalJSON() ([]byte, error) {
	type plain Chunk
	return json.Marshal(struct {
		plain
		BoundingBox *BoundingBox `json:"bounding_box"`
	}{plain: plain(c), BoundingBox: c.Box()})
}

// StructuralMetadata is what a structural extractor supplies for one element.
type StructuralMetadata struct {
	ElementType *ElementType `json:"element_type"`
	PageNumber  *int         `json:"page_number"`
	BoundingBox *BoundingBox `json:"bounding_box"`
	Confidence  *float64     `json:"confidence,omitempty"`
	ElementID   *string      `json:"element_id,omitempty"`
}

// Apply copies the metadata onto the chunk.
func (m *StructuralMetadata) Apply(c *Chunk) {
	if m == nil {
		return
	}
	c.ElementType = m.ElementType
	c.PageNumber = m.PageNumber
	c.SetBox(m.BoundingBox)
	c.Confidence = m.Confidence
	c.ElementID = m.ElementID
}

package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Embedding is the vector for exactly one chunk or one extracted image.
// Vector is stored as a JSON array of float32 for portability.
type Embedding struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string    `gorm:"size:36;not null;index" json:"document_id"`
	ChunkID    *string   `gorm:"size:36;uniqueIndex" json:"chunk_id,omitempty"`
	ImageID    *string   `gorm:"size:36;index" json:"image_id,omitempty"`
	Model      string    `gorm:"size:128;not null" json:"model"`
	Dimension  int       `gorm:"not null" json:"dimension"`
	Vector     string    `gorm:"type:longtext" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *Embedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// EmbeddingVector returns the parsed vector; empty on parse error.
func (e *Embedding) EmbeddingVector() []float32 {
	if e.Vector == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(e.Vector), &v)
	return v
}

// SetVector stores the vector and its dimensionality.
func (e *Embedding) SetVector(vec []float32) {
	e.Dimension = len(vec)
	if len(vec) == 0 {
		e.Vector = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	e.Vector = string(b)
}

// OwnerValid reports whether the embedding belongs to exactly one of a chunk
// or an image.
func (e *Embedding) OwnerValid() bool {
	return (e.ChunkID == nil) != (e.ImageID == nil)
}

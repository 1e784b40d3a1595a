package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is an uploaded file tracked through the ingestion state machine.
// Status is only written by the lifecycle service.
type Document struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerID      string         `gorm:"size:64;not null;index" json:"owner_id"`
	Filename     string         `gorm:"size:256;not null" json:"filename"`
	MimeType     string         `gorm:"size:128" json:"mime_type"`
	ByteSize     int64          `json:"byte_size"`
	Status       DocumentStatus `gorm:"size:48;not null;index" json:"status"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusUploaded
	}
	return nil
}

// IsQueryable reports whether the document's chunks may be searched.
func (d *Document) IsQueryable() bool {
	return d != nil && d.Status.IsQueryable()
}

// DocumentContent is the extracted plain text of a document (at most one per
// document).
type DocumentContent struct {
	DocumentID string    `gorm:"primaryKey;size:36" json:"document_id"`
	Text       string    `gorm:"type:longtext" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentImage is an image extracted from a document page.
type DocumentImage struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string    `gorm:"size:36;not null;index" json:"document_id"`
	PageNumber *int      `json:"page_number,omitempty"`
	StorageKey string    `gorm:"size:512" json:"storage_key"`
	Caption    string    `gorm:"type:text" json:"caption,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (i *DocumentImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// All returns every persisted model, for migrations.
func All() []any {
	return []any{
		&Document{},
		&DocumentContent{},
		&DocumentImage{},
		&Chunk{},
		&Embedding{},
	}
}

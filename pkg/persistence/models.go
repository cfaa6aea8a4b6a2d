package persistence

import (
	"crypto/sha256"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Document is one persisted collaborative document.
type Document struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CID string `gorm:"column:cid;type:varchar(255);not null;uniqueIndex" json:"cid"`

	// UpdateCount is the number of updates in the document's log. It is also
	// the sequence number of the newest update.
	UpdateCount int `gorm:"not null;default:0" json:"updateCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "collab_documents"
}

// BeforeCreate hook to ensure required fields.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.CID == "" {
		return fmt.Errorf("cid is required")
	}
	return nil
}

// DocumentUpdate is one entry of a document's update log.
type DocumentUpdate struct {
	ID uint `gorm:"primaryKey" json:"id"`

	DocumentID uint   `gorm:"not null;uniqueIndex:idx_collab_update_seq" json:"documentId"`
	Seq        int    `gorm:"not null;uniqueIndex:idx_collab_update_seq" json:"seq"`
	Data       []byte `gorm:"not null" json:"-"`

	// Checksum is the hex SHA-256 of Data.
	Checksum string `gorm:"type:varchar(64);not null" json:"checksum"`

	CreatedAt time.Time `json:"createdAt"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name.
func (DocumentUpdate) TableName() string {
	return "collab_document_updates"
}

// BeforeCreate hook to ensure required fields.
func (u *DocumentUpdate) BeforeCreate(tx *gorm.DB) error {
	if u.DocumentID == 0 {
		return fmt.Errorf("document_id is required")
	}
	if u.Seq <= 0 {
		return fmt.Errorf("seq must be positive")
	}
	if len(u.Data) == 0 {
		return fmt.Errorf("data is required")
	}
	if u.Checksum == "" {
		u.Checksum = ComputeChecksum(u.Data)
	}
	return nil
}

// ComputeChecksum returns the hex SHA-256 of data.
func ComputeChecksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ModelsToAutoMigrate lists the models managed by Migrate.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Document{}, // Must be first - updates reference it
		&DocumentUpdate{},
	}
}

// findDocument loads the document row for cid.
func findDocument(db *gorm.DB, cid string) (*Document, error) {
	var doc Document
	if err := db.Where("cid = ?", cid).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// findUpdates loads a document's log in sequence order.
func findUpdates(db *gorm.DB, documentID uint) ([]DocumentUpdate, error) {
	var updates []DocumentUpdate
	err := db.
		Where("document_id = ?", documentID).
		Order("seq ASC").
		Find(&updates).
		Error
	return updates, err
}

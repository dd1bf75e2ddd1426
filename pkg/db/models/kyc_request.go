package models

import (
	"time"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// KYCRequest is one identity review. DocumentReference points at a document
// stored elsewhere.
type KYCRequest struct {
	ID                int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID            int64                 `gorm:"column:user_id;not null;index"`
	DocumentType      enums.KYCDocumentType `gorm:"column:document_type;type:text;not null"`
	DocumentReference string                `gorm:"column:document_reference;type:text;not null"`
	Status            enums.KYCStatus       `gorm:"column:status;type:text;not null;default:pending"`
	AdminNotes        *string               `gorm:"column:admin_notes;type:text"`
	ReviewedBy        *int64                `gorm:"column:reviewed_by"`
	ReviewedAt        *time.Time            `gorm:"column:reviewed_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (KYCRequest) TableName() string { return "kyc_requests" }

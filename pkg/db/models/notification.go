package models

import (
	"time"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// AdminNotification is an entry in the back-office inbox.
type AdminNotification struct {
	ID                int64                      `gorm:"column:id;primaryKey;autoIncrement"`
	Type              enums.NotificationType     `gorm:"column:type;type:text;not null"`
	Title             string                     `gorm:"column:title;type:text;not null"`
	Message           string                     `gorm:"column:message;type:text;not null"`
	Priority          enums.NotificationPriority `gorm:"column:priority;type:text;not null;default:medium"`
	RelatedEntityType *string                    `gorm:"column:related_entity_type;type:text"`
	RelatedEntityID   *int64                     `gorm:"column:related_entity_id"`
	IsRead            bool                       `gorm:"column:is_read;not null;default:false"`
	ReadAt            *time.Time                 `gorm:"column:read_at"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

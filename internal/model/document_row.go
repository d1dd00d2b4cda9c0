package model

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentRow is the relational form of a Document. Rows are only ever inserted.
type DocumentRow struct {
	ID         string         `gorm:"type:varchar(36);primaryKey"`
	Collection string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_documents_revision,priority:1"`
	Type       string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_documents_revision,priority:2"`
	SetID      string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_documents_revision,priority:3"`
	Rev        int            `gorm:"not null;uniqueIndex:ux_documents_revision,priority:4"`
	Deleted    bool           `gorm:"not null"`
	Body       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

func (DocumentRow) TableName() string { return "documents" }

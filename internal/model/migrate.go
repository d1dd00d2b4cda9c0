package model

import "gorm.io/gorm"

// AutoMigrate creates the documents table and its revision constraint.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&DocumentRow{})
}

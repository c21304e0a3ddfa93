// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormWord is one entry of the drawing vocabulary.
type GormWord struct {
	gorm.Model
	Text    string `gorm:"uniqueIndex;not null"`
	Enabled bool   `gorm:"default:true"`
}

func (GormWord) TableName() string {
	return "words"
}

package models

import "time"

type UploadedFile struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"column:user_id;index;not null" json:"user_id"`
	Filename   string    `gorm:"column:filename;not null" json:"filename"`
	StoredPath string    `gorm:"column:stored_path;not null" json:"-"`
	SizeBytes  int64     `gorm:"column:size_bytes" json:"size_bytes"`
	RowCount   int       `gorm:"column:row_count" json:"row_count"`
	Columns    string    `gorm:"column:columns;type:text" json:"columns"` // JSON array of header names
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (UploadedFile) TableName() string { return "uploaded_files" }

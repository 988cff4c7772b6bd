package models

// PolicyDocument is a platform policy published by an admin. The
// document body lives in external storage and is referenced by an
// opaque key.
type PolicyDocument struct {
	BaseModel

	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description"`
	FileRef     string `gorm:"not null" json:"file_ref"`
	UploadedBy  string `gorm:"type:uuid;not null" json:"uploaded_by"`
}

package database

import (
	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.OrganizationApprovalRequest{},
		&models.VerificationCode{},
		&models.AuditLog{},
		&models.PolicyDocument{},
		&models.BankAccount{},
		&models.PaymentRecord{},
		&models.HelpRequest{},
	)
}

// SeedData populates the records every deployment needs: the platform
// bank account that receives membership fees.
func SeedData(db *gorm.DB) error {
	platformAccount := models.BankAccount{
		BaseModel:     models.BaseModel{ID: "platform-account"},
		OwnerType:     models.BankOwnerPlatform,
		OwnerID:       models.PlatformOwnerID,
		AccountNumber: "0000000000",
		BankName:      "E-DBA Platform Bank",
		Balance:       0,
	}

	return db.
		Where(models.BankAccount{OwnerType: platformAccount.OwnerType, OwnerID: platformAccount.OwnerID}).
		Attrs(platformAccount).
		FirstOrCreate(&models.BankAccount{}).Error
}

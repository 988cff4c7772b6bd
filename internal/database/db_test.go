package database

import (
	"testing"

	"gorm.io/gorm"

	"github.com/edba-platform/edba/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrateAndSeed(db); err != nil {
		t.Fatalf("auto migrate and seed failed: %v", err)
	}

	var account models.BankAccount
	if err := db.Where("owner_type = ?", models.BankOwnerPlatform).First(&account).Error; err != nil {
		t.Fatalf("expected platform bank account to be seeded: %v", err)
	}
	if account.Balance != 0 {
		t.Fatalf("expected zero opening balance, got %f", account.Balance)
	}

	// Seeding twice must not duplicate the platform account.
	if err := SeedData(db); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	var count int64
	if err := db.Model(&models.BankAccount{}).Where("owner_type = ?", models.BankOwnerPlatform).Count(&count).Error; err != nil {
		t.Fatalf("count accounts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 platform account, got %d", count)
	}
}

func TestConvenerMayPrecedeOrganizationRecord(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrateAndSeed(db); err != nil {
		t.Fatalf("auto migrate and seed failed: %v", err)
	}

	// Conveners receive their organization identifier at registration,
	// before the organization record is created at final approval. With
	// foreign_keys=1 neither insert may trip a constraint.
	orgID := "ORG-PRECEDE"
	convener := models.User{
		Username:       "early-convener",
		Email:          "early@example.com",
		Role:           models.RoleOConvener,
		OrganizationID: &orgID,
		IsActive:       true,
	}
	if err := db.Create(&convener).Error; err != nil {
		t.Fatalf("create convener before organization exists: %v", err)
	}

	org := models.Organization{
		OrganizationID: orgID,
		Name:           "Precede Labs",
		ConvenerUserID: convener.ID,
		Status:         models.OrganizationStatusActive,
	}
	if err := db.Create(&org).Error; err != nil {
		t.Fatalf("create organization after convener: %v", err)
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "edba", Name: "edba", Host: "db.internal", Port: 5433})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}
	want := "host=db.internal port=5433 user=edba dbname=edba sslmode=disable"
	if dsn != want {
		t.Fatalf("unexpected dsn %q", dsn)
	}

	if _, err := buildPostgresDSN(Config{}); err == nil {
		t.Fatal("expected error for missing user and database name")
	}
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "edba", Password: "secret", Name: "edba"})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}
	want := "edba:secret@tcp(127.0.0.1:3306)/edba?charset=utf8mb4&loc=Local&parseTime=True"
	if dsn != want {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

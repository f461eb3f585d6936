package services

import (
	"testing"

	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/db"
	"github.com/timottowitz/covidvaccinedetox/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	svc, err := db.NewTestDatabase(testLogger(t))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return svc.DB()
}

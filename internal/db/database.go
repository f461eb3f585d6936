package db

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
	"github.com/timottowitz/covidvaccinedetox/internal/utils"
)

// DatabaseService opens the resource metadata store: Postgres when
// POSTGRES_HOST is set, a local sqlite file otherwise. The sqlite file acts
// as the metadata side-store next to the upload directory.
type DatabaseService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatabaseService(log *logger.Logger) (*DatabaseService, error) {
	serviceLog := log.With("service", "DatabaseService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "", log)
	var (
		db  *gorm.DB
		err error
	)
	if postgresHost != "" {
		postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
		postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
		postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		postgresName := utils.GetEnv("POSTGRES_NAME", "knowledgebase", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

		serviceLog.Info("Connecting to Postgres...", "host", postgresHost, "db", postgresName)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
	} else {
		sqlitePath := utils.GetEnv("SQLITE_PATH", "data/metadata.db", log)
		serviceLog.Info("Opening sqlite metadata store...", "path", sqlitePath)
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", sqlitePath, err)
		}
	}

	return &DatabaseService{db: db, log: serviceLog}, nil
}

// NewTestDatabase opens a private in-memory sqlite store for tests.
func NewTestDatabase(log *logger.Logger) (*DatabaseService, error) {
	dsn := fmt.Sprintf("file:test-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open in-memory sqlite: %w", err)
	}
	return &DatabaseService{db: db, log: log.With("service", "DatabaseService")}, nil
}

func (s *DatabaseService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Resource{},
		&types.FeedItem{},
		&types.ResearchArticle{},
		&types.StatusCheck{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *DatabaseService) DB() *gorm.DB {
	return s.db
}

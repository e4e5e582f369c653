// Package gormw provides a wrapped gorm for the invite code registry.
package gormw

import (
	"regexp"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/charleshuang3/membergate/internal/models"
)

var (
	logger = zlog.With().Str("component", "db").Logger()

	postgresDSNRE = regexp.MustCompile(`^postgres(ql)?://`)
)

const memoryDSN = ":memory:"

type DB struct {
	*gorm.DB
}

type Config struct {
	// DSN the Data Source Name.
	DSN string `yaml:"dsn"`

	// Disable automatic ping.
	DisableAutomaticPing bool `yaml:"disable_automatic_ping"`

	// Max DB open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// Max DB idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	LogLevel glog.LogLevel `yaml:"log_level"`
}

func (cfg *Config) applyDefaults() {
	if cfg.DSN == "" {
		cfg.DSN = memoryDSN
		logger.Warn().Msg("Using in-memory sqlite DB, should not be used in production")
	}

	if cfg.DSN == memoryDSN {
		// every new connection to :memory: is a fresh empty database.
		cfg.MaxOpenConns = 1
	}

	if cfg.MaxIdleConns <= 0 {
		// golang's default.
		cfg.MaxIdleConns = 2
	}

	if cfg.LogLevel < glog.Silent || cfg.LogLevel > glog.Info {
		cfg.LogLevel = glog.Info
	}
}

func (cfg *Config) isPostgres() bool {
	return postgresDSNRE.MatchString(cfg.DSN) || len(strings.Fields(cfg.DSN)) >= 3
}

func Open(cfg *Config) (*DB, error) {
	cfg.applyDefaults()

	var dialector gorm.Dialector
	if cfg.isPostgres() {
		dialector = postgres.New(postgres.Config{
			DSN: cfg.DSN,
		})
	} else {
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: glog.New(
			&logger,
			glog.Config{
				SlowThreshold: 100 * time.Millisecond,
				LogLevel:      cfg.LogLevel,
				// lookups by code miss all the time, that is not an error.
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
				Colorful:                  false,
			},
		),
		PrepareStmt:          true,
		DisableAutomaticPing: cfg.DisableAutomaticPing,
	})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil /* ignore error */ {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &DB{db}, nil
}

// Migrate calls gorm.DB AutoMigrate() with all registry models.
func (db *DB) Migrate() error {
	return db.AutoMigrate(
		&models.InviteCode{},
	)
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

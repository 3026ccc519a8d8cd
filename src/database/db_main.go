package database

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stopguardian/src/model"
)

// MainDB is the primary read/write database connection used by the service.
var MainDB *gorm.DB

// InitMainDB initializes the main database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	var dialector gorm.Dialector
	if config.Driver == "sqlite" {
		dialector = sqlite.Open(config.SQLitePath)
	} else {
		dialector = postgres.Open(config.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Failed to get DB from GORM")
		return err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if err := db.AutoMigrate(
		&model.TrackingRecord{},
		&model.AlertLog{},
	); err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db
	logrus.WithField("driver", config.Driver).Info("Database connection initialized")
	return nil
}

// EnsureConnected pings the main connection and retries with exponential
// backoff before giving up. Called at the start of every monitoring tick so a
// transient database outage turns into a counted tick failure instead of a
// dead loop.
func EnsureConnected(ctx context.Context) error {
	if MainDB == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := MainDB.DB()
	if err != nil {
		return err
	}

	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    4 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var pingErr error
	for attempt := 0; attempt < 3; attempt++ {
		pingErr = sqlDB.PingContext(ctx)
		if pingErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}

	logrus.WithError(pingErr).Error("Database ping failed after retries")
	return pingErr
}

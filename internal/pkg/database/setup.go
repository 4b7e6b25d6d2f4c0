package database

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the process-wide handle set by SetupDatabase.
var DB *gorm.DB

// GetDB returns the handle opened by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// Models lists every table owned by this service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.SubscriptionPlan{},
		&models.UserSubscription{},
		&models.BillingWebhookEvent{},
	}
}

// DSN builds the MySQL data source name from the environment.
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

func SetupDatabase(log zerolog.Logger) {
	var err error
	dsn := DSN()

	gormLog := gormlogger.Default.LogMode(gormlogger.Warn)
	if env.IsDev() {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), &gorm.Config{Logger: gormLog})
		if err == nil {
			if err = configurePool(DB); err == nil {
				if env.GetEnv("DB_AUTO_MIGRATE", "true") == "true" {
					err = DB.AutoMigrate(Models()...)
				}
			}
			if err == nil {
				log.Info().Str("host", env.GetEnv("DB_HOST", "127.0.0.1")).Msg("database ready")
				return
			}
		}

		log.Warn().Err(err).Int("attempt", i+1).Int("max", maxRetries).Msg("failed to connect to database")
		if i < maxRetries-1 {
			log.Info().Dur("delay", retryDelay).Msg("retrying database connection")
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(env.GetInt("DB_MAX_OPEN_CONNS", 25))
	sqlDB.SetMaxIdleConns(env.GetInt("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxLifetime(time.Duration(env.GetInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute)
	return nil
}

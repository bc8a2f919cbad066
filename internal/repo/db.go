package repo

import (
	"log"

	"casino-core/internal/config"
	"casino-core/internal/model"
	"casino-core/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := config.GlobalConfig.Database.DSN
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}

	err = DB.AutoMigrate(
		&model.Account{},
		&model.LedgerEntry{},
		&model.Bet{},
		&model.CrashRound{},
		&model.WithdrawalRequest{},
		&model.Invoice{},
		&model.Admin{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}

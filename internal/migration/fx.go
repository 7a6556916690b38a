package migration

import (
	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/smallbiznis/adbilling/internal/ledger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if conn.Dialector.Name() != "postgres" || cfg.DBAutoMigrate {
			log.Info("auto migrating ledger schema", zap.String("dialect", conn.Dialector.Name()))
			return ledger.AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

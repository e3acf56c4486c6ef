package migration

import (
	"github.com/smallbiznis/qpayrelay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) {
		if !cfg.RunMigrations {
			return
		}
		// Promo resolution fails open, so a failed migration is logged rather than fatal.
		if err := Run(conn, cfg.Type); err != nil {
			log.Named("migration").Warn("schema migration failed", zap.String("type", cfg.Type), zap.Error(err))
			return
		}
		log.Named("migration").Info("schema up to date", zap.String("type", cfg.Type))
	}),
)

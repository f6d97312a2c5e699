package migrate

import (
	"context"
	"fmt"

	"github.com/alphacut/alphacut-backend/pkg/config"
	"github.com/alphacut/alphacut-backend/pkg/db"
	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every table the API owns.
func Models() []any {
	return []any{&models.Subscription{}}
}

// MaybeRunDev bootstraps tables automatically when the app runs in dev mode
// with the feature flag enabled, or whenever the sqlite driver is selected.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil {
		return nil
	}
	devFlag := cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
	if !devFlag && !cfg.DB.UsesSQLite() {
		return nil
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
		logg.Info(ctx, "running table bootstrap (auto-migrate)")
	}

	if err := AutoMigrate(client.DB()); err != nil {
		return err
	}

	if logg != nil {
		logg.Info(ctx, "table bootstrap completed")
	}
	return nil
}

// AutoMigrate creates or extends the owned tables.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Package repo holds shared repository test plumbing. It opens an isolated
// in-memory SQLite database migrated with the storefront models so packages
// can exercise their GORM repositories without a Postgres instance.
package repo

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table the services touch, in dependency order.
func Models() []any {
	return []any{
		&models.MembershipLevel{},
		&models.User{},
		&models.Product{},
		&models.CartItem{},
		&models.Coupon{},
		&models.UserCoupon{},
		&models.Order{},
		&models.OrderLine{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// OpenSQLite returns a fresh database named after the test.
func OpenSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:storefront_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// OpenClient wraps OpenSQLite in a db.Client so services get WithTx.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(OpenSQLite(t))
}

// Package dbtest opens migrated in-memory sqlite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/pkg/db"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
)

// New returns a client over a private shared-cache memory database with every
// model migrated. The pool is pinned to one connection so transactions run serially.
func New(t testing.TB) *db.Client {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return db.Wrap(conn)
}

// Env bundles the client with its raw handle for seeding and assertions.
type Env struct {
	Client *db.Client
	Conn   *gorm.DB
}

// NewEnv is New plus direct access to the gorm handle.
func NewEnv(t testing.TB) *Env {
	t.Helper()
	client := New(t)
	return &Env{Client: client, Conn: client.DB()}
}

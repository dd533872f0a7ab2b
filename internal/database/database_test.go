package database

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// setupDb connects to the database named by TEST_DATABASE_DSN. Tests are
// skipped when the variable is unset so the suite stays runnable without a
// local postgres.
func setupDb(t *testing.T) *Db {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := New(dsn, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Engine.Exec("DELETE FROM integration_credentials")
		db.Engine.Exec("DELETE FROM clients")
	})

	return db
}

func uniqueClientID() string {
	return fmt.Sprintf("client-%s", uuid.New().String()[:8])
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New("", nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewWithEngineRequiresEngine(t *testing.T) {
	_, err := NewWithEngine(nil, nil)
	require.ErrorIs(t, err, ErrInvalidDBObject)
}

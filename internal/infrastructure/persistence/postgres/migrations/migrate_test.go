package migrations

import (
	"testing"

	"github.com/Hari1275/sdp-sub000/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAutoMigrateRecordsEachModelOnce(t *testing.T) {
	db := testsupport.OpenSQLite(t)

	require.NoError(t, AutoMigrate(db, zap.NewNop()))
	require.NoError(t, AutoMigrate(db, zap.NewNop()))

	history, err := GetMigrationHistory(db)
	require.NoError(t, err)
	require.Len(t, history, len(Models()))
	for i, record := range history {
		assert.Equal(t, i+1, record.Version)
	}

	for _, table := range []string{"users", "tracking_sessions", "location_samples", "daily_summaries", "error_reports"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

package audit

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Entry{}))
	return NewService(db)
}

func TestNewCorrelationID_Format(t *testing.T) {
	id := NewCorrelationID("mbuy")
	assert.Regexp(t, regexp.MustCompile(`^mbuy_\d+_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewCorrelationID("mbuy"))
}

func TestCreateAndFetchByCorrelationID(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	corr := NewCorrelationID("mbuy")
	require.NoError(t, s.Create(ctx, OpMarketBuy, "buyer-1", "LST_1", "g1", corr, map[string]interface{}{
		"total": 22,
	}))
	require.NoError(t, s.Create(ctx, OpMarketBuy+OpSuffixCompensationFailed, "buyer-1", "", "g1", corr, nil))

	entries, err := s.ByCorrelationID(ctx, corr)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, OpMarketBuy, entries[0].OperationType)
	assert.Equal(t, "buyer-1", entries[0].ActorID)
	assert.Equal(t, "LST_1", entries[0].TargetID)
	assert.False(t, entries[0].Timestamp.IsZero())

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(entries[0].Metadata), &meta))
	assert.Equal(t, float64(22), meta["total"])

	// Nil metadata stores an empty object, never a null.
	assert.Equal(t, "{}", entries[1].Metadata)
}

func TestRecord_SwallowsWriteFailures(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	// Dropping the table makes every write fail; Record must not panic and
	// must not surface the error.
	require.NoError(t, s.db.Migrator().DropTable(&Entry{}))
	s.Record(ctx, OpMarketList, "seller-1", "LST_1", "g1", NewCorrelationID("mlist"), nil)
}

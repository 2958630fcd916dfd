package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStatsTests executes GetStorageStats tests.
func (suite *StoreTestSuite) RunStatsTests(t *testing.T) {
	t.Run("Empty", suite.testStatsEmpty)
	t.Run("AfterWrites", suite.testStatsAfterWrites)
}

func (suite *StoreTestSuite) testStatsEmpty(t *testing.T) {
	store := suite.NewStore()

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Zero(t, stats.ContentCount)
	assert.Zero(t, stats.UsedSize)
	assert.Zero(t, stats.AverageSize)
}

func (suite *StoreTestSuite) testStatsAfterWrites(t *testing.T) {
	store := suite.NewStore()

	mustWriteContent(t, store, generateTestKey("s1"), generateTestData(100))
	mustWriteContent(t, store, generateTestKey("s2"), generateTestData(300))

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.ContentCount)
	assert.Equal(t, uint64(400), stats.UsedSize)
	assert.Equal(t, uint64(200), stats.AverageSize)
}

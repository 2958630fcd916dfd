package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittocat/pkg/store/content"
)

// StoreTestSuite is a test suite for ContentStore implementations. It
// tests the interface contract, not implementation details, so every
// backend (memory, filesystem, S3) runs the same checks.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func() content.ContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty ContentStore for each test.
	NewStore func() content.ContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("ListOperations", suite.RunListTests)
	t.Run("Statistics", suite.RunStatsTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/store/mongo"
	"github.com/matzehuels/deprank/pkg/store/storetest"
)

// Set DEPRANK_TEST_MONGO=mongodb://localhost:27017 to run against a server.
func TestStore(t *testing.T) {
	uri := os.Getenv("DEPRANK_TEST_MONGO")
	if uri == "" {
		t.Skip("DEPRANK_TEST_MONGO not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		db := fmt.Sprintf("deprank_test_%d", time.Now().UnixNano())
		s, err := mongo.Open(ctx, uri, db)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}

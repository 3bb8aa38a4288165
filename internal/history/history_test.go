package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewly/reviewly/internal/testutil"
)

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil, DefaultRetention, testutil.DiscardLogger())
	assert.Error(t, err)
}

func TestStore_RetentionProperty(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userID := seedUser(t, db, "alice@example.com")

	store, err := NewStore(db.Pool, DefaultRetention, testutil.DiscardLogger())
	require.NoError(t, err)

	// One more write than the retention limit.
	for i := 1; i <= DefaultRetention+1; i++ {
		require.NoError(t, store.Save(ctx, userID, fmt.Sprintf("query %d", i)))
	}

	// Exactly retention rows survive, and the oldest one is gone.
	var count int
	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_query_history WHERE user_id = $1`, userID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetention, count)

	entries, err := store.Recent(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, DefaultRetention)
	assert.Equal(t, "query 6", entries[0].Query)
	assert.Equal(t, "query 2", entries[len(entries)-1].Query)
}

func TestStore_RetentionIsPerUser(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")

	store, err := NewStore(db.Pool, 2, testutil.DiscardLogger())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, alice, fmt.Sprintf("alice %d", i)))
	}
	require.NoError(t, store.Save(ctx, bob, "bob 0"))

	aliceEntries, err := store.Recent(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, aliceEntries, 2)

	bobEntries, err := store.Recent(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobEntries, 1)
	assert.Equal(t, "bob 0", bobEntries[0].Query)
}

func seedUser(t *testing.T, db *testutil.TestDBContainer, email string) int64 {
	t.Helper()
	var id int64
	err := db.Pool.QueryRow(context.Background(),
		`INSERT INTO users (email) VALUES ($1) RETURNING id`, email).Scan(&id)
	require.NoError(t, err)
	return id
}

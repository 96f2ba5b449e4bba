package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/confluence-stream/backend/internal/db"
	"github.com/confluence-stream/backend/internal/model"
)

// A record read back after any sequence of updates reflects the last init,
// the number of analyses recorded and the first close.
func TestHistoryRecordRoundTripProperty(t *testing.T) {
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer testDB.Close()

	repo := NewHistoryRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	userIDs := gen.AlphaString().SuchThat(func(s string) bool { return len(s) <= 64 })
	reasons := gen.OneConstOf(model.CloseReasonClient, model.CloseReasonEvicted, model.CloseReasonShutdown)

	properties.Property("history record reflects recorded lifecycle", prop.ForAll(
		func(userID string, confluences, analyses int, lifetime int64, reason model.CloseReason) bool {
			id := uuid.NewString()
			connectedAt := time.Unix(1700000000, 0).UTC()
			closedAt := connectedAt.Add(time.Duration(lifetime) * time.Millisecond)

			if err := repo.Create(ctx, &model.SessionRecord{ID: id, ConnectedAt: connectedAt}); err != nil {
				t.Logf("create failed: %v", err)
				return false
			}
			if err := repo.RecordInit(ctx, id, userID, confluences); err != nil {
				t.Logf("record init failed: %v", err)
				return false
			}
			for i := 0; i < analyses; i++ {
				if err := repo.IncrementAnalyses(ctx, id); err != nil {
					t.Logf("increment failed: %v", err)
					return false
				}
			}
			if err := repo.Close(ctx, id, closedAt, reason); err != nil {
				t.Logf("close failed: %v", err)
				return false
			}

			rec, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Logf("get failed: %v", err)
				return false
			}

			return rec.UserID == userID &&
				rec.ConfluenceCount == confluences &&
				rec.Analyses == analyses &&
				rec.ConnectedAt.Equal(connectedAt) &&
				rec.ClosedAt != nil && rec.ClosedAt.Equal(closedAt) &&
				rec.CloseReason == reason
		},
		userIDs,
		gen.IntRange(0, 50),
		gen.IntRange(0, 20),
		gen.Int64Range(0, 86_400_000),
		reasons,
	))

	properties.TestingRun(t)
}

package quest_test

import (
	"context"
	"testing"
	"time"

	"github.com/skillquest/server/model"
	"github.com/skillquest/server/quest"
	"github.com/skillquest/server/store/gormstore"
	"github.com/skillquest/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedEnrollment creates and enriches quests for the given weeks, returning
// quest ids indexed by week.
func seedEnrollment(t *testing.T, svc *quest.Service, weeks ...int) map[int]string {
	t.Helper()
	ctx := context.Background()
	res, err := svc.CreateFromSchedule(ctx, "s1", "p1", schedule(weeks...))
	require.NoError(t, err)
	_, err = svc.EnrichWithHomework(ctx, "s1", "p1", homework(weeks...))
	require.NoError(t, err)

	ids := make(map[int]string, len(weeks))
	for _, id := range res.QuestIDs {
		rec, err := svc.GetQuest(ctx, id)
		require.NoError(t, err)
		ids[rec.Week] = id
	}
	return ids
}

func TestRegenerate_PreservesGradedUpdatesRestBackfillsMissing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Two quests; week 1 gets graded.
	ids := seedEnrollment(t, svc, 1, 2)
	graded := quest.EncodeGrade(map[string]interface{}{"effort": 5}, "A")
	_, err := svc.UpdateGradeAndFeedback(ctx, ids[1], graded, "nice")
	require.NoError(t, err)

	// Regenerate with a three-week curriculum.
	fresh := []quest.ScheduleEntry{
		{Name: "new quest 1", Skills: "new-1", Week: 1},
		{Name: "new quest 2", Skills: "new-2", Week: 2},
		{Name: "new quest 3", Skills: "new-3", Week: 3},
	}
	res, err := svc.UpdatePreservingCompleted(ctx, "s1", "p1", fresh, homework(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Preserved)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.Total)

	// Week 1: grade, feedback and content survive; skills refresh.
	w1, err := svc.GetQuest(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, w1.Graded())
	assert.Equal(t, model.QuestStatusCompleted, w1.Status)
	assert.Equal(t, "quest 1", w1.Name)
	assert.Equal(t, "new-1", w1.Skills)

	// Week 2: overwritten in place, same id.
	w2, err := svc.GetQuest(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, "new quest 2", w2.Name)
	assert.Equal(t, model.QuestStatusNotStarted, w2.Status)

	// Week 3: backfilled into the same collection.
	col, err := svc.GetCollection(ctx, "s1", "p1")
	require.NoError(t, err)
	sums := col.Summaries()
	require.Len(t, sums, 3)
	weeks := map[int]bool{}
	for _, s := range sums {
		weeks[s.Week] = true
	}
	assert.True(t, weeks[1] && weeks[2] && weeks[3])
}

func TestRegenerate_InProgressPreserved(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ids := seedEnrollment(t, svc, 1)
	_, err := svc.UpdateStatus(ctx, ids[1], model.QuestStatusInProgress)
	require.NoError(t, err)

	res, err := svc.UpdatePreservingCompleted(ctx, "s1", "p1",
		[]quest.ScheduleEntry{{Name: "replacement", Skills: "x", Week: 1}},
		homework(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Preserved)
	assert.Equal(t, 0, res.Updated)

	rec, err := svc.GetQuest(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "quest 1", rec.Name)
	assert.Equal(t, model.QuestStatusInProgress, rec.Status)
}

func TestRegenerate_ColdStart(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.UpdatePreservingCompleted(ctx, "s1", "p1", schedule(1, 2), homework(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Preserved)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Total)

	col, err := svc.GetCollection(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.Len(t, col.Summaries(), 2)
}

func TestRegenerate_OrphanRecordsReconciledFirst(t *testing.T) {
	real := gormstore.New(testutil.SetupTestDB(t))
	flaky := &flakyStore{Store: real, failPutCollection: 10}
	svc := quest.NewService(flaky, flaky, testConfig(), zap.NewNop())
	ctx := context.Background()

	// Creation writes records but loses the collection.
	created, err := svc.CreateFromSchedule(ctx, "s1", "p1", schedule(1, 2))
	require.Error(t, err)
	require.Equal(t, 2, created.Created)

	// Store recovers; regeneration must rebuild the collection and merge
	// into it instead of starting a new one.
	flaky.failPutCollection = 0
	res, err := svc.UpdatePreservingCompleted(ctx, "s1", "p1", schedule(1, 2), homework(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 0, res.Created)

	col, err := svc.GetCollection(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.Equal(t, created.CollectionID, col.ID)
}

func TestRegenerate_MergesIntoNewestCollection(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	old, err := svc.CreateFromSchedule(ctx, "s1", "p1", schedule(1))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	cur, err := svc.CreateFromSchedule(ctx, "s1", "p1", schedule(1))
	require.NoError(t, err)

	res, err := svc.UpdatePreservingCompleted(ctx, "s1", "p1", schedule(1), homework(1))
	require.NoError(t, err)
	// Only the record in the newest collection is merged; the old
	// collection's record is ignored.
	assert.Equal(t, 1, res.Total)

	col, err := svc.GetCollection(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.Equal(t, cur.CollectionID, col.ID)
	assert.NotEqual(t, old.CollectionID, col.ID)
}

func TestRegenerate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ve *quest.ValidationError
	_, err := svc.UpdatePreservingCompleted(ctx, "s1", "p1", nil, nil)
	require.ErrorAs(t, err, &ve)

	_, err = svc.UpdatePreservingCompleted(ctx, "", "p1", schedule(1), nil)
	require.ErrorAs(t, err, &ve)
}

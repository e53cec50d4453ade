package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQuestLifecycleFlow drives a full student journey over HTTP: login,
// generate quests, start one, submit and get graded, then regenerate and
// verify the graded quest survived.
func TestQuestLifecycleFlow(t *testing.T) {
	ts := NewTestServer(t)
	token := ts.Login(t, "alice", "pass1234")

	// Generate a three-week course.
	resp := ts.PostJSON(t, "/api/quests/generate", token, map[string]interface{}{
		"period_id": "algebra-1",
		"subject":   "algebra",
		"weeks":     3,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body)

	// List the collection.
	resp = ts.GetJSON(t, "/api/periods/algebra-1/quests", token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	summaries := resp.JSON["member_summaries"].([]interface{})
	require.Len(t, summaries, 3)

	var week1ID string
	for _, raw := range summaries {
		s := raw.(map[string]interface{})
		assert.Equal(t, "not_started", s["status"])
		if s["week"].(float64) == 1 {
			week1ID = s["quest_id"].(string)
		}
	}
	require.NotEmpty(t, week1ID)

	// Quest detail shows homework and no grade yet.
	resp = ts.GetJSON(t, "/api/quests/"+week1ID, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	grade := resp.JSON["grade"].(map[string]interface{})
	assert.Equal(t, "Not graded", grade["display"])

	// Start the quest.
	resp = ts.PutJSON(t, "/api/quests/"+week1ID+"/status",
		token, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)

	// Submit for grading.
	resp = ts.PostJSON(t, "/api/quests/"+week1ID+"/submit",
		token, map[string]string{"submission": "my worked solutions"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	quest := resp.JSON["quest"].(map[string]interface{})
	assert.Equal(t, "completed", quest["status"])
	grade = resp.JSON["grade"].(map[string]interface{})
	assert.Equal(t, "B+", grade["overall_score"])

	// Regenerate the course; the graded quest must be preserved.
	resp = ts.PostJSON(t, "/api/quests/regenerate", token, map[string]interface{}{
		"period_id": "algebra-1",
		"subject":   "algebra",
		"weeks":     3,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	assert.Equal(t, float64(1), resp.JSON["preserved"])
	assert.Equal(t, float64(2), resp.JSON["updated"])
	assert.Equal(t, float64(3), resp.JSON["total"])

	resp = ts.GetJSON(t, "/api/quests/"+week1ID, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	quest = resp.JSON["quest"].(map[string]interface{})
	assert.Equal(t, "completed", quest["status"])
	grade = resp.JSON["grade"].(map[string]interface{})
	assert.Equal(t, "B+", grade["overall_score"])
}

func TestQuestRoutesRequireAuth(t *testing.T) {
	ts := NewTestServer(t)

	resp := ts.PostJSON(t, "/api/quests/generate", "", map[string]interface{}{
		"period_id": "p1", "subject": "math",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.GetJSON(t, "/api/periods/p1/quests", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestStudentsAreIsolated(t *testing.T) {
	ts := NewTestServer(t)
	alice := ts.Login(t, "alice", "pass1234")
	bob := ts.Login(t, "bob", "pass1234")

	resp := ts.PostJSON(t, "/api/quests/generate", alice, map[string]interface{}{
		"period_id": "p1", "subject": "math", "weeks": 1,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body)

	resp = ts.GetJSON(t, "/api/periods/p1/quests", alice)
	require.Equal(t, http.StatusOK, resp.Code)
	questID := resp.JSON["member_summaries"].([]interface{})[0].(map[string]interface{})["quest_id"].(string)

	// Bob has no quests in the period and cannot read Alice's quest.
	resp = ts.GetJSON(t, "/api/periods/p1/quests", bob)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.GetJSON(t, "/api/quests/"+questID, bob)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAdminMetricsAndAudit(t *testing.T) {
	ts := NewTestServer(t)
	token := ts.Login(t, "carol", "pass1234")

	resp := ts.PostJSON(t, "/api/quests/generate", token, map[string]interface{}{
		"period_id": "p1", "subject": "math", "weeks": 2,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Key", "integration-admin-key")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)
}

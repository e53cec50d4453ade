package model_test

import (
	"testing"

	"github.com/skillquest/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestValidStatus(t *testing.T) {
	assert.True(t, model.ValidStatus(model.QuestStatusNotStarted))
	assert.True(t, model.ValidStatus(model.QuestStatusInProgress))
	assert.True(t, model.ValidStatus(model.QuestStatusCompleted))
	assert.False(t, model.ValidStatus("done"))
	assert.False(t, model.ValidStatus(""))
}

func TestQuestRecordValidate(t *testing.T) {
	rec := model.QuestRecord{Week: 1, Status: model.QuestStatusNotStarted}
	require.NoError(t, rec.Validate())

	rec.Week = 0
	assert.Error(t, rec.Validate())

	rec.Week = 1
	rec.Status = "bogus"
	assert.Error(t, rec.Validate())
}

func TestQuestRecordGraded(t *testing.T) {
	rec := model.QuestRecord{}
	assert.False(t, rec.Graded())

	empty := ""
	rec.Grade = &empty
	assert.False(t, rec.Graded())

	grade := "A"
	rec.Grade = &grade
	assert.True(t, rec.Graded())
}

func TestCollectionSummaries_CorruptColumn(t *testing.T) {
	col := model.QuestCollection{MemberSummaries: datatypes.JSON(`{not json`)}
	assert.Empty(t, col.Summaries())

	col.MemberSummaries = nil
	assert.Empty(t, col.Summaries())
}

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/uwscope/scope-web-sub000/internal/model"
)

func TestIdentityFilterForSingletons(t *testing.T) {
	none := ""
	filter := identityFilter(Query{Type: model.TypeProfile, SetID: &none})

	assert.Equal(t, model.TypeProfile, filter[model.FieldType])
	assert.Equal(t, bson.M{"$exists": false}, filter[model.FieldSetID])
}

func TestLatestPipelineFiltersAfterGrouping(t *testing.T) {
	pipeline := latestPipeline(Query{Type: model.TypeScheduledActivity, Fields: map[string]string{"activityScheduleId": "s1"}})

	require.Len(t, pipeline, 6)
	stages := make([]string, len(pipeline))
	for i, stage := range pipeline {
		stages[i] = stage[0].Key
	}
	assert.Equal(t, []string{"$match", "$sort", "$group", "$replaceRoot", "$match", "$sort"}, stages)
	assert.Equal(t, bson.M{"activityScheduleId": "s1"}, pipeline[4][0].Value)
}

func TestLatestPipelineWithoutFields(t *testing.T) {
	pipeline := latestPipeline(Query{Type: model.TypeValue})
	assert.Len(t, pipeline, 5)
}

func TestNormalizeBSONProducesPlainDocuments(t *testing.T) {
	when := time.Date(2022, 3, 14, 15, 0, 0, 0, time.UTC)
	raw := bson.M{
		model.FieldID:   "0180",
		model.FieldType: model.TypeScheduledActivity,
		model.FieldRev:  int32(3),
		"dataSnapshot":  bson.M{"activity": bson.D{{Key: "name", Value: "walk"}}},
		"flags":         bson.A{int64(1), "x"},
		"at":            primitive.NewDateTimeFromTime(when),
	}

	plain, ok := normalizeBSON(raw).(map[string]any)
	require.True(t, ok)

	doc, err := model.FromMap(plain)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Rev)
	assert.Equal(t, map[string]any{"activity": map[string]any{"name": "walk"}}, doc.Body["dataSnapshot"])
	assert.Equal(t, []any{float64(1), "x"}, doc.Body["flags"])
	assert.Equal(t, when, doc.Body["at"])
}

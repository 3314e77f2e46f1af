package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/nutrilog/internal/domain/models"
)

func TestToDocumentNormalisesDriverTypes(t *testing.T) {
	oid := primitive.NewObjectID()
	ts := time.Date(2024, 5, 12, 8, 0, 0, 0, time.UTC)

	doc := toDocument(bson.M{
		"_id":       oid,
		"user_id":   "u1",
		"name":      "porridge",
		"calories":  int32(320),
		"fat":       int64(6),
		"timestamp": primitive.NewDateTimeFromTime(ts),
	})

	assert.Equal(t, oid.Hex(), doc.ID)
	assert.NotContains(t, doc.Fields, "_id")

	meal, err := models.MapMeal(doc)
	require.NoError(t, err)
	assert.Equal(t, "porridge", meal.Name)
	assert.Equal(t, 320, meal.Calories)
	assert.Equal(t, 6, meal.Fat)
	assert.Equal(t, 0, meal.Protein)
	assert.True(t, ts.Equal(meal.Timestamp))
}

func TestToDocumentKeepsUnexpectedTimestampType(t *testing.T) {
	doc := toDocument(bson.M{"_id": "abc", "timestamp": "yesterday"})

	assert.Equal(t, "abc", doc.ID)
	_, err := models.MapMeal(doc)
	assert.ErrorIs(t, err, models.ErrInvalidTimestamp)
}

func TestWindowFilter(t *testing.T) {
	w := models.NewDayWindow(time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC), time.UTC)
	filter := windowFilter("u1", w)

	require.Len(t, filter, 2)
	assert.Equal(t, "user_id", filter[0].Key)
	assert.Equal(t, "u1", filter[0].Value)

	rng, ok := filter[1].Value.(bson.D)
	require.True(t, ok)
	assert.Equal(t, bson.E{Key: "$gte", Value: w.Start}, rng[0])
	assert.Equal(t, bson.E{Key: "$lt", Value: w.End}, rng[1])
}

func TestChangePipelineMatchesUserAndDeletes(t *testing.T) {
	pipeline := changePipeline("u1")
	require.Len(t, pipeline, 1)
	require.Equal(t, "$match", pipeline[0][0].Key)

	match, ok := pipeline[0][0].Value.(bson.D)
	require.True(t, ok)
	or, ok := match[0].Value.(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)

	assert.Equal(t, bson.D{{Key: "fullDocument.user_id", Value: "u1"}}, or[0])
	assert.Equal(t, bson.D{{Key: "operationType", Value: "delete"}}, or[1])
}

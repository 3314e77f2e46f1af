package mongodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/config"
	"github.com/mamadbah2/nutrilog/internal/domain/models"
)

const defaultPollInterval = 2 * time.Second

// mealRecord is the persisted shape of a meal.
type mealRecord struct {
	UserID    string    `bson:"user_id"`
	Name      string    `bson:"name"`
	Calories  int       `bson:"calories"`
	Protein   int       `bson:"protein"`
	Carbs     int       `bson:"carbs"`
	Fat       int       `bson:"fat"`
	Timestamp time.Time `bson:"timestamp"`
}

// MealStore keeps every user's meals in one collection keyed by user_id.
// Logically each meal lives at users/{user_id}/meals/{_id}.
type MealStore struct {
	client       *mongo.Client
	coll         *mongo.Collection
	pollInterval time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewMealStore connects to MongoDB and prepares the meals collection.
func NewMealStore(ctx context.Context, cfg config.MongoDBConfig, logger *zap.Logger) (*MealStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(cfg.DBName).Collection(cfg.MealsCollection)
	index := mongo.IndexModel{
		Keys: bson.D{{Key: models.FieldUserID, Value: 1}, {Key: models.FieldTimestamp, Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create meals index: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &MealStore{
		client:       client,
		coll:         coll,
		pollInterval: pollInterval,
		now:          time.Now,
		logger:       logger,
	}, nil
}

// SubscribeMeals emits the user's meals inside window, first immediately and
// then after every change to the collection. Change streams need a replica
// set; on a standalone server the store falls back to polling.
func (r *MealStore) SubscribeMeals(ctx context.Context, userID string, window models.DayWindow) (<-chan models.SnapshotEvent, error) {
	if userID == "" {
		return nil, errors.New("userID must not be empty")
	}

	out := make(chan models.SnapshotEvent)
	logger := r.logger.With(zap.String("path", models.MealsPath(userID)))

	// The stream is opened before the initial query so no change falls in between.
	stream, watchErr := r.coll.Watch(ctx, changePipeline(userID), options.ChangeStream())

	initial, err := r.query(ctx, userID, window)
	if err != nil {
		if watchErr == nil {
			_ = stream.Close(context.Background())
		}
		return nil, err
	}

	if watchErr != nil {
		logger.Warn("change stream unavailable, polling instead", zap.Error(watchErr), zap.Duration("interval", r.pollInterval))
		go r.poll(ctx, out, userID, window, initial)
		return out, nil
	}

	go r.watch(ctx, out, stream, userID, window, initial)
	return out, nil
}

// AddMeal inserts a meal stamped with the current time.
func (r *MealStore) AddMeal(ctx context.Context, userID string, meal models.NewMeal) error {
	record := mealRecord{
		UserID:    userID,
		Name:      meal.Name,
		Calories:  meal.Calories,
		Protein:   meal.Protein,
		Carbs:     meal.Carbs,
		Fat:       meal.Fat,
		Timestamp: r.now().UTC(),
	}

	res, err := r.coll.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		r.logger.Debug("meal inserted", zap.String("path", models.MealPath(userID, oid.Hex())))
	}
	return nil
}

// DeleteMeal removes a meal. Unknown or malformed ids are not an error.
func (r *MealStore) DeleteMeal(ctx context.Context, userID, mealID string) error {
	oid, err := primitive.ObjectIDFromHex(mealID)
	if err != nil {
		r.logger.Debug("ignoring delete of malformed meal id", zap.String("meal_id", mealID))
		return nil
	}

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: models.FieldUserID, Value: userID}})
	if err != nil {
		return fmt.Errorf("failed to delete meal %s: %w", mealID, err)
	}

	r.logger.Debug("meal delete applied", zap.String("path", models.MealPath(userID, mealID)), zap.Int64("deleted", res.DeletedCount))
	return nil
}

// Close closes the MongoDB connection.
func (r *MealStore) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MealStore) watch(ctx context.Context, out chan<- models.SnapshotEvent, stream *mongo.ChangeStream, userID string, window models.DayWindow, initial []models.Document) {
	defer close(out)
	defer func() { _ = stream.Close(context.Background()) }()

	if !send(ctx, out, models.SnapshotEvent{Documents: initial}) {
		return
	}

	for stream.Next(ctx) {
		docs, err := r.query(ctx, userID, window)
		if err != nil {
			if ctx.Err() == nil {
				send(ctx, out, models.SnapshotEvent{Err: err})
			}
			return
		}
		if !send(ctx, out, models.SnapshotEvent{Documents: docs}) {
			return
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, models.SnapshotEvent{Err: fmt.Errorf("meal change stream: %w", err)})
	}
}

func (r *MealStore) poll(ctx context.Context, out chan<- models.SnapshotEvent, userID string, window models.DayWindow, initial []models.Document) {
	defer close(out)

	if !send(ctx, out, models.SnapshotEvent{Documents: initial}) {
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	last := initial
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		docs, err := r.query(ctx, userID, window)
		if err != nil {
			if ctx.Err() == nil {
				send(ctx, out, models.SnapshotEvent{Err: err})
			}
			return
		}
		if reflect.DeepEqual(docs, last) {
			continue
		}
		last = docs
		if !send(ctx, out, models.SnapshotEvent{Documents: docs}) {
			return
		}
	}
}

func (r *MealStore) query(ctx context.Context, userID string, window models.DayWindow) ([]models.Document, error) {
	cursor, err := r.coll.Find(ctx, windowFilter(userID, window))
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode meals: %w", err)
	}

	docs := make([]models.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, toDocument(m))
	}
	return docs, nil
}

func windowFilter(userID string, window models.DayWindow) bson.D {
	return bson.D{
		{Key: models.FieldUserID, Value: userID},
		{Key: models.FieldTimestamp, Value: bson.D{
			{Key: "$gte", Value: window.Start},
			{Key: "$lt", Value: window.End},
		}},
	}
}

// changePipeline narrows the change stream to the user's inserts and updates.
// Delete events carry no document body, so every delete triggers a re-query.
func changePipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "fullDocument." + models.FieldUserID, Value: userID}},
			bson.D{{Key: "operationType", Value: "delete"}},
		}}}}},
	}
}

// toDocument normalises driver types into plain Go values.
func toDocument(m bson.M) models.Document {
	doc := models.Document{Fields: make(map[string]any, len(m))}
	for key, value := range m {
		if key == "_id" {
			doc.ID = idString(value)
			continue
		}
		switch v := value.(type) {
		case primitive.DateTime:
			doc.Fields[key] = v.Time()
		case primitive.Timestamp:
			doc.Fields[key] = time.Unix(int64(v.T), 0)
		default:
			doc.Fields[key] = v
		}
	}
	return doc
}

func idString(value any) string {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func send(ctx context.Context, out chan<- models.SnapshotEvent, event models.SnapshotEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

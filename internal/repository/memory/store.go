package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/domain/models"
)

// Store is an in-process meal store with the same live-query semantics as the
// MongoDB store: every change pushes the full matching set to subscribers.
type Store struct {
	mu       sync.Mutex
	meals    map[string][]models.Document
	watchers map[string]map[*watcher]struct{}
	now      func() time.Time
	logger   *zap.Logger
}

type watcher struct {
	window models.DayWindow
	notify chan struct{}
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp new meals.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore builds an empty store.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		meals:    make(map[string][]models.Document),
		watchers: make(map[string]map[*watcher]struct{}),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubscribeMeals streams the user's meals inside window. The first event is
// delivered right away; the channel is closed once ctx is done.
func (s *Store) SubscribeMeals(ctx context.Context, userID string, window models.DayWindow) (<-chan models.SnapshotEvent, error) {
	if userID == "" {
		return nil, errors.New("userID must not be empty")
	}

	w := &watcher{window: window, notify: make(chan struct{}, 1)}
	w.notify <- struct{}{}

	s.mu.Lock()
	if s.watchers[userID] == nil {
		s.watchers[userID] = make(map[*watcher]struct{})
	}
	s.watchers[userID][w] = struct{}{}
	s.mu.Unlock()

	out := make(chan models.SnapshotEvent)
	go func() {
		defer close(out)
		defer s.unwatch(userID, w)

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.notify:
			}

			event := models.SnapshotEvent{Documents: s.query(userID, w.window)}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Debug("meal subscription opened",
		zap.String("path", models.MealsPath(userID)),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End))

	return out, nil
}

// AddMeal appends a meal stamped with the store clock.
func (s *Store) AddMeal(_ context.Context, userID string, meal models.NewMeal) error {
	if userID == "" {
		return errors.New("userID must not be empty")
	}

	doc := models.Document{
		ID: uuid.NewString(),
		Fields: map[string]any{
			models.FieldUserID:    userID,
			models.FieldName:      meal.Name,
			models.FieldCalories:  meal.Calories,
			models.FieldProtein:   meal.Protein,
			models.FieldCarbs:     meal.Carbs,
			models.FieldFat:       meal.Fat,
			models.FieldTimestamp: s.now(),
		},
	}

	s.mu.Lock()
	s.meals[userID] = append(s.meals[userID], doc)
	s.notifyLocked(userID)
	s.mu.Unlock()

	s.logger.Debug("meal added", zap.String("path", models.MealPath(userID, doc.ID)))
	return nil
}

// DeleteMeal removes a meal. Unknown ids are ignored.
func (s *Store) DeleteMeal(_ context.Context, userID, mealID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.meals[userID]
	for i, doc := range docs {
		if doc.ID != mealID {
			continue
		}
		s.meals[userID] = append(docs[:i:i], docs[i+1:]...)
		s.notifyLocked(userID)
		s.logger.Debug("meal deleted", zap.String("path", models.MealPath(userID, mealID)))
		return nil
	}

	return nil
}

func (s *Store) query(userID string, window models.DayWindow) []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]models.Document, 0, len(s.meals[userID]))
	for _, doc := range s.meals[userID] {
		ts, ok := doc.Fields[models.FieldTimestamp].(time.Time)
		if !ok || !window.Contains(ts) {
			continue
		}
		matched = append(matched, models.Document{ID: doc.ID, Fields: maps.Clone(doc.Fields)})
	}
	return matched
}

func (s *Store) notifyLocked(userID string) {
	for w := range s.watchers[userID] {
		select {
		case w.notify <- struct{}{}:
		default:
			// a refresh is already pending and will read the latest state
		}
	}
}

func (s *Store) unwatch(userID string, w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.watchers[userID], w)
	if len(s.watchers[userID]) == 0 {
		delete(s.watchers, userID)
	}
}

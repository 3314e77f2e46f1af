package dailymeals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/domain/models"
)

// ErrNotSignedIn is returned by writes issued before an identity is known.
var ErrNotSignedIn = errors.New("no signed-in user")

var errStreamClosed = errors.New("meal subscription closed unexpectedly")

// MealStore is the backing store capability the view depends on.
type MealStore interface {
	SubscribeMeals(ctx context.Context, userID string, window models.DayWindow) (<-chan models.SnapshotEvent, error)
	AddMeal(ctx context.Context, userID string, meal models.NewMeal) error
	DeleteMeal(ctx context.Context, userID, mealID string) error
}

// IdentitySource streams the signed-in identity.
type IdentitySource interface {
	Identities(ctx context.Context) <-chan models.Identity
}

// Recorder receives view activity for metrics.
type Recorder interface {
	RecordSnapshot(n int)
	RecordMappingFailure()
	RecordSubscriptionFailure()
	SubscriptionOpened()
	SubscriptionClosed()
	RecordWrite(op string, err error)
}

// Service is the live view of today's meals for the signed-in user. All
// state changes happen on the goroutine running Run.
type Service struct {
	store      MealStore
	identities IdentitySource
	loc        *time.Location
	now        func() time.Time
	recorder   Recorder
	logger     *zap.Logger

	remount chan struct{}

	mu        sync.RWMutex
	state     State
	listeners map[chan State]struct{}
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used to compute the day window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService wires a view over store for the identities emitted by source.
// Days are computed in loc.
func NewService(store MealStore, source IdentitySource, loc *time.Location, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		store:      store,
		identities: source,
		loc:        loc,
		now:        time.Now,
		recorder:   nopRecorder{},
		logger:     logger,
		remount:    make(chan struct{}, 1),
		state:      State{Status: StatusLoading, Meals: []models.Meal{}},
		listeners:  make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the view until ctx is done. Every identity change tears down the
// current subscription before the next one is opened, so events from an old
// subscription are never applied. Run must be called once.
func (s *Service) Run(ctx context.Context) error {
	identities := s.identities.Identities(ctx)

	var (
		identity models.Identity
		window   models.DayWindow
		events   <-chan models.SnapshotEvent
		stop     = func() {}
	)
	defer func() { stop() }()

	resubscribe := func() {
		stop()
		events, window, stop = s.open(ctx, identity)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case id, ok := <-identities:
			if !ok {
				return nil
			}
			s.logger.Info("identity changed", zap.String("user_id", id.UserID))
			identity = id
			resubscribe()

		case <-s.remount:
			if !identity.Present() {
				continue
			}
			s.logger.Info("remounting daily view", zap.String("user_id", identity.UserID))
			resubscribe()

		case event, ok := <-events:
			err := event.Err
			if !ok {
				err = errStreamClosed
			}
			if err != nil {
				s.recorder.RecordSubscriptionFailure()
				s.fail(identity, window, fmt.Errorf("meal subscription: %w", err))
				stop()
				events, stop = nil, func() {}
				continue
			}

			if err := s.apply(identity, window, event.Documents); err != nil {
				s.recorder.RecordMappingFailure()
				s.fail(identity, window, err)
				stop()
				events, stop = nil, func() {}
			}
		}
	}
}

// AddMeal parses the input and appends it to the store. The new meal shows
// up through the next snapshot, never directly.
func (s *Service) AddMeal(ctx context.Context, input models.MealInput) error {
	userID := s.State().UserID
	if userID == "" {
		return ErrNotSignedIn
	}

	meal := input.Parse()
	err := s.store.AddMeal(ctx, userID, meal)
	s.recorder.RecordWrite("add", err)
	if err != nil {
		return fmt.Errorf("add meal: %w", err)
	}

	s.logger.Debug("meal submitted", zap.String("user_id", userID), zap.String("name", meal.Name), zap.Int("calories", meal.Calories))
	return nil
}

// DeleteMeal removes a meal from the store. Deleting an id that no longer
// exists succeeds.
func (s *Service) DeleteMeal(ctx context.Context, mealID string) error {
	userID := s.State().UserID
	if userID == "" {
		return ErrNotSignedIn
	}

	err := s.store.DeleteMeal(ctx, userID, mealID)
	s.recorder.RecordWrite("delete", err)
	if err != nil {
		return fmt.Errorf("delete meal %s: %w", mealID, err)
	}
	return nil
}

// Remount asks Run to resubscribe the current identity with a freshly
// computed day window.
func (s *Service) Remount() {
	select {
	case s.remount <- struct{}{}:
	default:
	}
}

func (s *Service) open(ctx context.Context, identity models.Identity) (<-chan models.SnapshotEvent, models.DayWindow, func()) {
	noop := func() {}
	if !identity.Present() {
		s.setState(State{Status: StatusLoading, Meals: []models.Meal{}})
		return nil, models.DayWindow{}, noop
	}

	window := models.NewDayWindow(s.now(), s.loc)
	s.setState(State{Status: StatusLoading, UserID: identity.UserID, Window: window, Meals: []models.Meal{}})

	subCtx, cancel := context.WithCancel(ctx)
	events, err := s.store.SubscribeMeals(subCtx, identity.UserID, window)
	if err != nil {
		cancel()
		s.recorder.RecordSubscriptionFailure()
		s.fail(identity, window, fmt.Errorf("subscribe meals: %w", err))
		return nil, window, noop
	}

	s.recorder.SubscriptionOpened()
	s.logger.Debug("subscribed to meals",
		zap.String("path", models.MealsPath(identity.UserID)),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End))

	var once sync.Once
	return events, window, func() {
		once.Do(func() {
			cancel()
			s.recorder.SubscriptionClosed()
		})
	}
}

func (s *Service) apply(identity models.Identity, window models.DayWindow, docs []models.Document) error {
	state, err := Reconcile(docs)
	if err != nil {
		return err
	}
	state.UserID = identity.UserID
	state.Window = window

	s.setState(state)
	s.recorder.RecordSnapshot(len(state.Meals))
	return nil
}

func (s *Service) fail(identity models.Identity, window models.DayWindow, err error) {
	s.logger.Error("daily view failed", zap.String("user_id", identity.UserID), zap.Error(err))
	s.setState(State{
		Status: StatusFailed,
		UserID: identity.UserID,
		Window: window,
		Meals:  []models.Meal{},
		Error:  err.Error(),
	})
}

type nopRecorder struct{}

func (nopRecorder) RecordSnapshot(int) {}
func (nopRecorder) RecordMappingFailure() {}
func (nopRecorder) RecordSubscriptionFailure() {}
func (nopRecorder) SubscriptionOpened() {}
func (nopRecorder) SubscriptionClosed() {}
func (nopRecorder) RecordWrite(string, error) {}

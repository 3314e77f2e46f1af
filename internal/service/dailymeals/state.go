package dailymeals

import "github.com/mamadbah2/nutrilog/internal/domain/models"

// Status is the lifecycle stage of the daily view.
type Status string

const (
	// StatusLoading means no snapshot has arrived for the current identity.
	StatusLoading Status = "loading"
	// StatusReady means at least one snapshot was applied.
	StatusReady Status = "ready"
	// StatusFailed means the subscription broke or a document was unreadable.
	StatusFailed Status = "failed"
)

// State is one rendered frame of the daily view.
type State struct {
	Status   Status             `json:"status"`
	UserID   string             `json:"user_id,omitempty"`
	Window   models.DayWindow   `json:"window"`
	Meals    []models.Meal      `json:"meals"`
	Totals   models.DailyTotals `json:"totals"`
	Error    string             `json:"error,omitempty"`
	Revision uint64             `json:"revision"`
}

// Reconcile builds a ready state from a full snapshot. It depends only on
// docs: the meal list is replaced wholesale, never patched.
func Reconcile(docs []models.Document) (State, error) {
	meals, err := models.MapMeals(docs)
	if err != nil {
		return State{}, err
	}
	return State{
		Status: StatusReady,
		Meals:  meals,
		Totals: models.SumTotals(meals),
	}, nil
}

// State returns the latest frame.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Listen delivers the current frame and every later one. A slow reader only
// sees the newest frame. Call the returned func to stop listening.
func (s *Service) Listen() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	ch <- s.state
	s.listeners[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.listeners[ch]; ok {
			delete(s.listeners, ch)
			close(ch)
		}
	}
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Revision = s.state.Revision + 1
	s.state = state

	for ch := range s.listeners {
		select {
		case ch <- state:
			continue
		default:
		}
		// drop the stale frame the listener has not read yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

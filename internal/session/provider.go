package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/domain/models"
)

// Authenticator establishes an anonymous account and returns its user id.
type Authenticator interface {
	SignInAnonymously(ctx context.Context) (string, error)
}

// LocalAuthenticator signs in without a remote identity service. It returns
// UserID when set and a fresh random id otherwise.
type LocalAuthenticator struct {
	UserID string
}

// SignInAnonymously implements Authenticator.
func (a LocalAuthenticator) SignInAnonymously(context.Context) (string, error) {
	if a.UserID != "" {
		return a.UserID, nil
	}
	return uuid.NewString(), nil
}

// Provider holds the current identity and fans it out to observers.
type Provider struct {
	auth    Authenticator
	mu      sync.RWMutex
	current models.Identity
	signals map[chan struct{}]struct{}
	logger  *zap.Logger
}

// NewProvider creates a signed-out provider.
func NewProvider(auth Authenticator, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		auth:    auth,
		signals: make(map[chan struct{}]struct{}),
		logger:  logger,
	}
}

// Current returns the identity right now.
func (p *Provider) Current() models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// SignInAnonymously signs in once. Calling it while signed in returns the
// existing identity.
func (p *Provider) SignInAnonymously(ctx context.Context) (models.Identity, error) {
	if current := p.Current(); current.Present() {
		return current, nil
	}

	userID, err := p.auth.SignInAnonymously(ctx)
	if err != nil {
		return models.Identity{}, fmt.Errorf("anonymous sign-in: %w", err)
	}
	if userID == "" {
		return models.Identity{}, fmt.Errorf("anonymous sign-in: empty user id")
	}

	identity := models.Identity{UserID: userID}
	p.publish(identity)
	p.logger.Info("signed in", zap.String("user_id", userID))
	return identity, nil
}

// SignOut clears the identity.
func (p *Provider) SignOut() {
	p.publish(models.Identity{})
	p.logger.Info("signed out")
}

// Identities streams the current identity followed by every change. The
// same identity is never delivered twice in a row; when changes arrive
// faster than they are consumed only the latest one is delivered. The
// channel closes when ctx is done.
func (p *Provider) Identities(ctx context.Context) <-chan models.Identity {
	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	p.mu.Lock()
	p.signals[signal] = struct{}{}
	p.mu.Unlock()

	out := make(chan models.Identity)
	go func() {
		defer close(out)
		defer func() {
			p.mu.Lock()
			delete(p.signals, signal)
			p.mu.Unlock()
		}()

		var (
			last models.Identity
			sent bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}

			identity := p.Current()
			if sent && identity == last {
				continue
			}

			select {
			case out <- identity:
				last, sent = identity, true
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (p *Provider) publish(identity models.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == identity {
		return
	}
	p.current = identity
	for signal := range p.signals {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}

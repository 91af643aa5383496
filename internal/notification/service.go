package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
)

const (
	DefaultSubscriptionCooldown = 30 * time.Second
	DefaultFailureListLimit     = 100
)

type SubscriptionRepository interface {
	FindByEndpoint(ctx context.Context, endpoint string) (*PushSubscription, error)
	LatestForUser(ctx context.Context, userID string) (*PushSubscription, error)
	// Upsert inserts s or rewrites the row that already holds s.Endpoint.
	Upsert(ctx context.Context, s *PushSubscription) error
	Delete(ctx context.Context, userID, endpoint string) error
}

type FailureRepository interface {
	FailureRecorder
	ListFailures(ctx context.Context, limit int) ([]*Failure, error)
}

// SubscribeResult reports the stored subscription. Throttled means a setup for the same user
// ran inside the cooldown window and nothing was written.
type SubscribeResult struct {
	Subscription *PushSubscription `json:"subscription"`
	Throttled    bool              `json:"throttled"`
}

type Service struct {
	subscriptions SubscriptionRepository
	failures      FailureRepository
	cooldown      time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu        sync.Mutex
	lastSetup map[string]time.Time
}

func NewService(subscriptions SubscriptionRepository, failures FailureRepository, cooldown time.Duration, logger *slog.Logger) *Service {
	if cooldown <= 0 {
		cooldown = DefaultSubscriptionCooldown
	}
	return &Service{
		subscriptions: subscriptions,
		failures:      failures,
		cooldown:      cooldown,
		now:           time.Now,
		logger:        logger,
		lastSetup:     make(map[string]time.Time),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// claim records a setup for userID and reports whether the cooldown allowed it.
func (s *Service) claim(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.lastSetup[userID]; ok && now.Sub(last) < s.cooldown {
		return false
	}
	s.lastSetup[userID] = now
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	delete(s.lastSetup, userID)
	s.mu.Unlock()
}

func (s *Service) Subscribe(ctx context.Context, actor *auth.User, dto SubscribeDTO) (*SubscribeResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if !s.claim(actor.ID) {
		s.logger.Debug("push subscription setup throttled", "user_id", actor.ID)
		existing, err := s.subscriptions.LatestForUser(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return &SubscribeResult{Subscription: existing, Throttled: true}, nil
	}

	sub := &PushSubscription{
		UserID:   actor.ID,
		Endpoint: dto.Endpoint,
		P256dh:   dto.Keys.P256dh,
		Auth:     dto.Keys.Auth,
	}
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		s.release(actor.ID)
		s.logger.Error("failed to save push subscription", "error", err, "user_id", actor.ID)
		return nil, err
	}

	s.logger.Info("push subscription saved", "user_id", actor.ID, "subscription_id", sub.ID)
	return &SubscribeResult{Subscription: sub}, nil
}

func (s *Service) Unsubscribe(ctx context.Context, actor *auth.User, dto UnsubscribeDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.subscriptions.Delete(ctx, actor.ID, dto.Endpoint); err != nil {
		s.logger.Error("failed to delete push subscription", "error", err, "user_id", actor.ID)
		return err
	}
	s.release(actor.ID)
	return nil
}

func (s *Service) ListFailures(ctx context.Context, actor *auth.User, limit int) ([]*Failure, error) {
	if !actor.HasPermission(auth.PermViewNotifyErrors) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if limit <= 0 || limit > 1000 {
		limit = DefaultFailureListLimit
	}
	return s.failures.ListFailures(ctx, limit)
}

package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

const tokenAttempts = 3

// SessionService issues, validates and expires per-table session tokens.
type SessionService struct {
	db       *gorm.DB
	tables   *TableRegistry
	ttl      time.Duration
	limiter  *TableRateLimiter
	policy   *StatusPolicy
	notifier Notifier
	newToken func() (string, error)
	now      func() time.Time
}

type SessionOption func(*SessionService)

func WithTokenGenerator(gen func() (string, error)) SessionOption {
	return func(s *SessionService) { s.newToken = gen }
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// WithRateLimiter caps how often a table may request a new session.
func WithRateLimiter(l *TableRateLimiter) SessionOption {
	return func(s *SessionService) { s.limiter = l }
}

func WithSessionNotifier(n Notifier) SessionOption {
	return func(s *SessionService) { s.notifier = n }
}

func WithSessionPolicy(p *StatusPolicy) SessionOption {
	return func(s *SessionService) { s.policy = p }
}

func NewSessionService(db *gorm.DB, tables *TableRegistry, ttl time.Duration, opts ...SessionOption) *SessionService {
	s := &SessionService{
		db:       db,
		tables:   tables,
		ttl:      ttl,
		policy:   DefaultStatusPolicy(),
		notifier: NopNotifier{},
		newToken: utils.NewSessionToken,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL is how long a session stays valid after creation.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// CreateSession replaces the table's active session with a new one.
func (s *SessionService) CreateSession(ctx context.Context, table int) (*models.Session, error) {
	if !s.tables.IsValid(table) {
		return nil, ErrInvalidTable
	}
	if s.limiter != nil {
		if wait := s.limiter.Allow(table); wait > 0 {
			utils.InfoLogger.WithFields(logrus.Fields{"table": table, "retry_after": wait}).Info("session request rate limited")
			return nil, rateLimited(wait)
		}
	}

	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, storageUnavailable("generate token", err)
		}

		now := s.now()
		session := &models.Session{
			TableNumber: table,
			Token:       token,
			IsActive:    true,
			ActiveTable: &table,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		var replaced []models.Session
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("table_number = ? AND is_active = ?", table, true).Find(&replaced).Error; err != nil {
				return err
			}
			if _, err := deactivateSessions(tx, now, "table_number = ?", table); err != nil {
				return err
			}
			return tx.Create(session).Error
		})
		if err == nil {
			for _, old := range replaced {
				s.notifier.SessionClosed(ctx, SessionClosedEvent{SessionID: old.ID, TableNumber: table, Reason: CloseReasonReplaced})
			}
			utils.InfoLogger.WithFields(logrus.Fields{
				"table":      table,
				"session_id": session.ID,
				"replaced":   len(replaced),
			}).Info("session created")
			return session, nil
		}
		if !isDuplicateKey(err) {
			return nil, storageUnavailable("create session", err)
		}
		utils.InfoLogger.WithFields(logrus.Fields{"table": table, "attempt": attempt}).Warn("session insert collided, retrying")
	}
	return nil, ErrTokenCollision
}

// ValidateSession resolves token to its active session. Expired sessions and
// sessions whose order has been finalized are deactivated on the way out.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.IsActive {
		return nil, ErrSessionInactive
	}

	now := s.now()
	if now.Sub(session.CreatedAt) > s.ttl {
		if err := s.close(ctx, session, now, CloseReasonExpired); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	if session.OrderID != nil {
		var order models.Order
		err := s.db.WithContext(ctx).Select("id", "status").First(&order, *session.OrderID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// the order was cancelled out from under the session
			if err := s.close(ctx, session, now, CloseReasonOrderFinalized); err != nil {
				return nil, err
			}
			return nil, ErrOrderFinalized
		case err != nil:
			return nil, storageUnavailable("load linked order", err)
		case s.policy.IsTerminal(order.Status):
			if err := s.close(ctx, session, now, CloseReasonOrderFinalized); err != nil {
				return nil, err
			}
			return nil, ErrOrderFinalized
		}
	}
	return session, nil
}

// InvalidateSession deactivates token. Invalidating an inactive session is a no-op.
func (s *SessionService) InvalidateSession(ctx context.Context, token string) error {
	session, err := s.findByToken(ctx, token)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrUnknownSession
	}
	if !session.IsActive {
		return nil
	}
	return s.close(ctx, session, s.now(), CloseReasonInvalidated)
}

// SessionStatus reports active, consumed or inactive for token, applying lazy
// expiry first.
func (s *SessionService) SessionStatus(ctx context.Context, token string) (string, error) {
	session, err := s.ValidateSession(ctx, token)
	switch {
	case err == nil:
		return session.State(), nil
	case errors.Is(err, ErrSessionNotFound):
		return "", ErrUnknownSession
	case errors.Is(err, ErrSessionInactive), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrOrderFinalized):
		return models.SessionStateInactive, nil
	default:
		return "", err
	}
}

func (s *SessionService) findByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageUnavailable("load session", err)
	}
	return &session, nil
}

func (s *SessionService) close(ctx context.Context, session *models.Session, now time.Time, reason string) error {
	n, err := deactivateSessions(s.db.WithContext(ctx), now, "id = ?", session.ID)
	if err != nil {
		return storageUnavailable("deactivate session", err)
	}
	session.IsActive = false
	session.ActiveTable = nil
	if n == 0 {
		return nil
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"table":      session.TableNumber,
		"session_id": session.ID,
		"reason":     reason,
	}).Info("session closed")
	s.notifier.SessionClosed(ctx, SessionClosedEvent{SessionID: session.ID, TableNumber: session.TableNumber, Reason: reason})
	return nil
}

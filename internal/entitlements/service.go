package entitlements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alphacut/alphacut-backend/internal/devicestore"
	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

type snapshotStore interface {
	Load(ctx context.Context, sessionID string, kind devicestore.Kind, dest any) (bool, error)
	Save(ctx context.Context, sessionID string, kind devicestore.Kind, value any) error
}

type subscriptionReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
}

type ServiceParams struct {
	Store         snapshotStore
	Subscriptions subscriptionReader
	Logger        *logger.Logger
	Clock         func() time.Time
}

// Service applies entitlement transitions to the session replica.
type Service struct {
	store snapshotStore
	subs  subscriptionReader
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription reader required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store: params.Store,
		subs:  params.Subscriptions,
		logg:  params.Logger,
		now:   clock,
	}, nil
}

// Initialize writes a fresh free record for a new session.
func (s *Service) Initialize(ctx context.Context, sessionID string) (Record, error) {
	rec := NewRecord()
	if err := s.save(ctx, sessionID, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the session record, or a free record when none was stored.
func (s *Service) Get(ctx context.Context, sessionID string) (Record, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Record{}, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	var rec Record
	found, err := s.store.Load(ctx, sessionID, devicestore.KindEntitlement, &rec)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return NewRecord(), nil
	}
	return rec, nil
}

// Subscribe optimistically moves the replica to a paid plan. The durable
// record still changes only through the payment webhook.
func (s *Service) Subscribe(ctx context.Context, sessionID string, plan enums.PlanType) (Record, error) {
	return s.mutate(ctx, sessionID, func(rec Record) (Record, error) {
		return Subscribe(rec, plan, s.now())
	})
}

// Cancel drops the replica back to free.
func (s *Service) Cancel(ctx context.Context, sessionID string) (Record, error) {
	return s.mutate(ctx, sessionID, func(rec Record) (Record, error) {
		return CancelSubscription(rec), nil
	})
}

// IncrementAnalysis counts one analysis against the replica.
func (s *Service) IncrementAnalysis(ctx context.Context, sessionID string) (Record, error) {
	return s.mutate(ctx, sessionID, func(rec Record) (Record, error) {
		return IncrementAnalysis(rec), nil
	})
}

// Sync refreshes the replica from the durable subscription of userID.
func (s *Service) Sync(ctx context.Context, sessionID, userID string) (Record, error) {
	if strings.TrimSpace(userID) == "" {
		return Record{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	durable, err := s.subs.FindByUserID(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.mutate(ctx, sessionID, func(rec Record) (Record, error) {
		return Sync(rec, durable, s.now()), nil
	})
	if err != nil {
		return Record{}, err
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"plan":            string(rec.Plan),
			"durable_present": durable != nil,
		})
		s.logg.Info(ctx, "entitlement synced")
	}
	return rec, nil
}

// Access evaluates the gate for the session record.
func (s *Service) Access(ctx context.Context, sessionID string) (Access, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return Access{}, err
	}
	return Evaluate(rec), nil
}

// Permits evaluates a single action for the session record.
func (s *Service) Permits(ctx context.Context, sessionID string, action Action) (bool, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return Permits(rec, action)
}

func (s *Service) mutate(ctx context.Context, sessionID string, apply func(Record) (Record, error)) (Record, error) {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	next, err := apply(current)
	if err != nil {
		return Record{}, err
	}
	if err := s.save(ctx, sessionID, next); err != nil {
		return Record{}, err
	}
	return next, nil
}

func (s *Service) save(ctx context.Context, sessionID string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.store.Save(ctx, sessionID, devicestore.KindEntitlement, rec)
}

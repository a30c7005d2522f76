package key

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Service is the engine facade handed to the presentation layer: the
// five backend operations plus rotation, with every mutation routed
// through the session's concurrency guard. It is written purely against
// the Backend interface; the variant was chosen at session start.
type Service struct {
	backend Backend
	guard   Guard
	log     *zap.Logger
}

type ServiceParams struct {
	fx.In
	Backend Backend
	Logger  *zap.Logger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		backend: p.Backend,
		log:     p.Logger,
	}
}

// Backend exposes the session's variant, mainly so the operator layer
// can display its identity and reach identity resolution on the store
// variant.
func (s *Service) Backend() Backend {
	return s.backend
}

func (s *Service) List(ctx context.Context, includeRevoked bool) ([]*Record, error) {
	flight := "list"
	if includeRevoked {
		flight = "list_all"
	}
	v, err := s.guard.Refresh(ctx, flight, func(ctx context.Context) (any, error) {
		return s.backend.ListKeys(ctx, includeRevoked)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Record), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.backend.GetKeyInfo(ctx, id)
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Record, error) {
	var rec *Record
	err := s.guard.Mutate(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.backend.CreateKey(ctx, p)
		return err
	})
	return rec, err
}

func (s *Service) Revoke(ctx context.Context, id string) (bool, error) {
	var applied bool
	err := s.guard.Mutate(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.backend.RevokeKey(ctx, id)
		return err
	})
	return applied, err
}

func (s *Service) Rotate(ctx context.Context, id string, p RotateParams) (*Record, error) {
	var rec *Record
	err := s.guard.Mutate(ctx, func(ctx context.Context) error {
		var err error
		rec, err = Rotate(ctx, s.backend, id, p, s.log)
		return err
	})
	return rec, err
}

func (s *Service) Health(ctx context.Context) bool {
	return s.backend.HealthCheck(ctx)
}

package checklists

import (
	"context"
	"time"

	"mantaqc_backend/internal/checklists/repository"
	"mantaqc_backend/platform/apperr"
	"mantaqc_backend/platform/events"
	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

// Service coordinates check completion: answers are validated against the
// check's frozen schema version before the status transition commits.
type Service struct {
	repo   *repository.Repository
	engine *Engine
	bus    events.Bus
	log    *logger.Logger
}

// NewService creates the checklist service.
func NewService(repo *repository.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		engine: NewEngine(),
		bus:    bus,
		log:    log,
	}
}

// CompleteCheck validates the check's stored answers and transitions it to
// completed. Validation reports every problem at once rather than failing
// on the first. A check.completed event is published after the transition.
func (s *Service) CompleteCheck(ctx context.Context, id uuid.UUID, now time.Time) (repository.CheckInstance, error) {
	check, err := s.repo.GetCheck(ctx, id)
	if err != nil {
		return repository.CheckInstance{}, err
	}

	raw, err := s.repo.GetSchemaForVersion(ctx, check.TemplateID, check.TemplateVersion)
	if err != nil {
		return repository.CheckInstance{}, err
	}
	schema, err := ParseSchema(raw)
	if err != nil {
		return repository.CheckInstance{}, apperr.Wrap(apperr.KindInternal, "parse template schema", err)
	}

	answers, err := check.DecodedAnswers()
	if err != nil {
		return repository.CheckInstance{}, apperr.Wrap(apperr.KindInternal, "decode check answers", err)
	}

	if ok, problems := s.engine.Validate(schema, answers); !ok {
		return repository.CheckInstance{}, apperr.Validation("answer validation failed").WithDetails(problems)
	}

	completed, err := s.repo.CompleteCheck(ctx, id, now.UTC())
	if err != nil {
		return repository.CheckInstance{}, err
	}

	s.bus.Publish(ctx, CheckCompletedEvent{
		BaseEvent:  events.NewBaseEvent(),
		CheckID:    completed.ID,
		TemplateID: completed.TemplateID,
		BrigadeID:  completed.BrigadeID,
		FinishedAt: now.UTC(),
	})
	s.log.Info("check completed", "check_id", completed.ID.String())

	return completed, nil
}

// CreateTemplateVersion stores a new schema as the template's next version.
// The schema is parsed first so a malformed document never becomes current.
func (s *Service) CreateTemplateVersion(ctx context.Context, templateID uuid.UUID, raw []byte, createdBy string) (repository.TemplateVersion, error) {
	if _, err := ParseSchema(raw); err != nil {
		return repository.TemplateVersion{}, apperr.Validation("invalid template schema").WithDetails([]string{err.Error()})
	}

	version, err := s.repo.CreateVersion(ctx, templateID, raw, createdBy)
	if err != nil {
		return repository.TemplateVersion{}, err
	}

	s.log.Info("template version created",
		"template_id", templateID.String(),
		"version", version.Version,
	)
	return version, nil
}

// Score evaluates a check's stored answers against its frozen schema.
func (s *Service) Score(ctx context.Context, id uuid.UUID) (float64, error) {
	check, err := s.repo.GetCheck(ctx, id)
	if err != nil {
		return 0, err
	}
	raw, err := s.repo.GetSchemaForVersion(ctx, check.TemplateID, check.TemplateVersion)
	if err != nil {
		return 0, err
	}
	schema, err := ParseSchema(raw)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "parse template schema", err)
	}
	answers, err := check.DecodedAnswers()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "decode check answers", err)
	}
	return s.engine.Score(schema, answers), nil
}

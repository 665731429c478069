package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/geo"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// PipelineRunner launches the decision pipeline for an issue. It is
// satisfied by the pipeline orchestrator; services depend on this
// narrow surface instead of the orchestrator itself.
type PipelineRunner interface {
	Run(ctx context.Context, issueID string)
	Resume(ctx context.Context, issueID string)
}

// ReportInput is a citizen's raw issue report.
type ReportInput struct {
	ReporterID     *string
	Description    string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
}

// IngestionService accepts raw reports, persists them, and kicks off
// the decision pipeline asynchronously so ingestion stays fast.
type IngestionService struct {
	issues repository.IssueRepository
	bus    events.Bus
	runner PipelineRunner
	logger *zap.Logger
}

// NewIngestionService instantiates the service.
func NewIngestionService(issues repository.IssueRepository, bus events.Bus, runner PipelineRunner, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		issues: issues,
		bus:    bus,
		runner: runner,
		logger: logger,
	}
}

// Report validates and stores the issue, publishes issue_created, and
// starts its pipeline in the background. The returned issue is in the
// reported state; clients follow progress on the flow stream.
func (s *IngestionService) Report(ctx context.Context, input ReportInput) (*domain.Issue, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", nil)
	}
	if !geo.ValidCoordinate(input.Latitude, input.Longitude) {
		return nil, apperrors.NewValidationError("invalid coordinates", map[string]any{
			"latitude":  input.Latitude,
			"longitude": input.Longitude,
		})
	}

	issue := &domain.Issue{
		ReporterID:     input.ReporterID,
		Description:    description,
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		AccuracyMeters: input.AccuracyMeters,
		State:          domain.IssueStateReported,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, err
	}

	_ = s.bus.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventIssueCreated,
		IssueID:   issue.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.IssueCreatedPayload{
			Latitude:    issue.Latitude,
			Longitude:   issue.Longitude,
			Description: issue.Description,
		},
	})

	s.logger.Info("issue reported",
		zap.String("issue_id", issue.ID),
		zap.Float64("latitude", issue.Latitude),
		zap.Float64("longitude", issue.Longitude))

	// The run outlives the HTTP request that triggered it.
	go s.runner.Run(context.WithoutCancel(ctx), issue.ID)
	return issue, nil
}

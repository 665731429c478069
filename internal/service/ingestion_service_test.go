package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

func newIngestionService(t *testing.T) (*IngestionService, *memIssueRepo, *captureBus, *stubRunner) {
	t.Helper()
	issues := newMemIssueRepo()
	bus := &captureBus{}
	runner := newStubRunner()
	svc := NewIngestionService(issues, bus, runner, zap.NewNop())
	return svc, issues, bus, runner
}

func TestReportStoresIssueAndLaunchesPipeline(t *testing.T) {
	svc, issues, bus, runner := newIngestionService(t)

	issue, err := svc.Report(context.Background(), ReportInput{
		Description: "  deep pothole near the school  ",
		Latitude:    12.9,
		Longitude:   77.58,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IssueStateReported, issue.State)
	assert.Equal(t, "deep pothole near the school", issue.Description)
	assert.NotEmpty(t, issue.ID)

	stored, err := issues.GetByID(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStateReported, stored.State)

	assert.Len(t, bus.byType(events.EventIssueCreated), 1)

	runner.wait(t)
	assert.Equal(t, []string{issue.ID}, runner.runs)
}

func TestReportRejectsEmptyDescription(t *testing.T) {
	svc, _, _, runner := newIngestionService(t)

	_, err := svc.Report(context.Background(), ReportInput{
		Description: "   ",
		Latitude:    12.9,
		Longitude:   77.58,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	assert.Empty(t, runner.runs)
}

func TestReportRejectsInvalidCoordinates(t *testing.T) {
	svc, _, _, _ := newIngestionService(t)

	_, err := svc.Report(context.Background(), ReportInput{
		Description: "pothole",
		Latitude:    123.0,
		Longitude:   77.58,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

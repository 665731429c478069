package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// SLABand classifies how much of an issue's SLA window remains.
type SLABand string

const (
	BandOK       SLABand = "ok"
	BandWarning  SLABand = "warning"
	BandCritical SLABand = "critical"
	BandBreach   SLABand = "breach"
)

// warnSuppressTTL bounds how long a warning stays suppressed; the band
// key changes as the window shrinks, so a worsening issue always warns
// again.
const warnSuppressTTL = 24 * time.Hour

// ComputeBand classifies the remaining window. The band is a pure
// function of the clock, the deadline, and the window size: more than
// half remaining is ok, between 20% and half is warning, under 20% is
// critical, and an expired deadline is breach.
func ComputeBand(now, deadline time.Time, slaHours int) SLABand {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return BandBreach
	}
	if slaHours <= 0 {
		return BandOK
	}
	total := time.Duration(slaHours) * time.Hour
	fraction := float64(remaining) / float64(total)
	switch {
	case fraction > 0.5:
		return BandOK
	case fraction >= 0.2:
		return BandWarning
	default:
		return BandCritical
	}
}

// SLAService periodically sweeps supervised issues, emits deadline
// warnings, and hands deteriorating issues to the escalation engine.
type SLAService struct {
	issues     repository.IssueRepository
	members    repository.MemberRepository
	redis      *redis.Client
	bus        events.Bus
	escalation *EscalationService
	metrics    *observability.Metrics
	cfg        config.SLAConfig
	logger     *zap.Logger
}

// NewSLAService instantiates the supervisor.
func NewSLAService(
	issues repository.IssueRepository,
	members repository.MemberRepository,
	redisClient *redis.Client,
	bus events.Bus,
	escalation *EscalationService,
	metrics *observability.Metrics,
	cfg config.SLAConfig,
	logger *zap.Logger,
) *SLAService {
	return &SLAService{
		issues:     issues,
		members:    members,
		redis:      redisClient,
		bus:        bus,
		escalation: escalation,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Sweep examines every supervised issue once. A failure on one issue
// is logged and the sweep moves on; one bad row must not starve the
// rest of the fleet.
func (s *SLAService) Sweep(ctx context.Context) error {
	hasDeadline := true
	notDuplicate := false
	issues, err := s.issues.ListWithFilter(ctx, repository.IssueFilter{
		States: []domain.IssueState{
			domain.IssueStateAssigned,
			domain.IssueStateInProgress,
			domain.IssueStateEscalated,
		},
		HasSLADeadline: &hasDeadline,
		IsDuplicate:    &notDuplicate,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range issues {
		if err := s.superviseOne(ctx, &issues[i], now); err != nil {
			s.logger.Error("sla supervision failed for issue",
				zap.String("issue_id", issues[i].ID), zap.Error(err))
		}
	}
	return nil
}

func (s *SLAService) superviseOne(ctx context.Context, issue *domain.Issue, now time.Time) error {
	if !issue.HasSLA() {
		return nil
	}
	band := ComputeBand(now, *issue.SLADeadline, issue.SLAHours)

	switch band {
	case BandOK:
		return nil
	case BandWarning, BandCritical:
		s.warn(ctx, issue, band, now)
		if band == BandCritical {
			return s.escalation.Evaluate(ctx, issue, now)
		}
		return nil
	case BandBreach:
		s.warn(ctx, issue, band, now)
		return s.escalation.Evaluate(ctx, issue, now)
	}
	return nil
}

// warn emits an sla_warning event unless one for the same issue and
// band was already emitted recently. With WarnEverySweep set the
// suppression is bypassed and every sweep re-warns.
func (s *SLAService) warn(ctx context.Context, issue *domain.Issue, band SLABand, now time.Time) {
	if !s.cfg.WarnEverySweep {
		key := fmt.Sprintf("sla:warned:%s:%s", issue.ID, band)
		fresh, err := s.redis.SetNX(ctx, key, "1", warnSuppressTTL).Result()
		if err != nil {
			s.logger.Warn("sla warning suppression unavailable, warning anyway",
				zap.String("issue_id", issue.ID), zap.Error(err))
		} else if !fresh {
			return
		}
	}

	hoursRemaining := issue.SLADeadline.Sub(now).Hours()
	payload := events.SLAWarningPayload{
		HoursRemaining: hoursRemaining,
		WarningLevel:   string(band),
	}
	if issue.AssignedMemberID != nil {
		member, err := s.members.GetByID(ctx, *issue.AssignedMemberID)
		if err != nil {
			s.logger.Warn("failed to load member for sla warning",
				zap.String("issue_id", issue.ID), zap.Error(err))
		} else {
			email := member.Email
			payload.AssignedEmail = &email
		}
	}

	_ = s.bus.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLAWarning,
		IssueID:   issue.ID,
		Timestamp: now,
		Payload:   payload,
	})
	s.metrics.RecordSweepWarning(string(band))
}

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// routingStage owns department selection, member assignment, and the
// SLA clock. The issue leaves this stage assigned with a deadline even
// when no member currently has capacity.
type routingStage struct {
	issues      repository.IssueRepository
	departments repository.DepartmentRepository
	members     repository.MemberRepository
	issueEvents repository.IssueEventRepository
	bus         events.Bus
	oracle      oracle.Oracle
	sla         config.SLAConfig
	logger      *zap.Logger
}

// NewRoutingStage instantiates the stage.
func NewRoutingStage(
	issues repository.IssueRepository,
	departments repository.DepartmentRepository,
	members repository.MemberRepository,
	issueEvents repository.IssueEventRepository,
	bus events.Bus,
	o oracle.Oracle,
	sla config.SLAConfig,
	logger *zap.Logger,
) Stage {
	return &routingStage{
		issues:      issues,
		departments: departments,
		members:     members,
		issueEvents: issueEvents,
		bus:         bus,
		oracle:      o,
		sla:         sla,
		logger:      logger,
	}
}

func (s *routingStage) Name() string { return StageRouting }

func (s *routingStage) Execute(ctx context.Context, ic *IssueContext) (Outcome, error) {
	departments, err := s.departments.ListActive(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(departments) == 0 {
		return Outcome{}, apperrors.NewInternalError(errNoDepartments)
	}

	department := s.chooseDepartment(ctx, ic.Issue, departments)
	member := s.assignMember(ctx, ic.Issue, department)

	slaHours := s.slaHours(ic.Issue, department)
	deadline := time.Now().UTC().Add(time.Duration(slaHours) * time.Hour)

	if err := saveIssue(ctx, s.issues, ic, func(issue *domain.Issue) {
		issue.State = domain.IssueStateAssigned
		issue.DepartmentID = &department.ID
		if member != nil {
			issue.AssignedMemberID = &member.ID
			issue.City = member.City
			issue.Locality = member.Locality
		}
		issue.SLAHours = slaHours
		issue.SLADeadline = &deadline
	}); err != nil {
		if member != nil {
			// Give the capacity unit back; the assignment was never recorded.
			if derr := s.members.DecrementWorkload(ctx, member.ID); derr != nil {
				s.logger.Warn("failed to release member workload after assignment failure",
					zap.String("member_id", member.ID), zap.Error(derr))
			}
		}
		return Outcome{}, err
	}

	memberName := "unassigned"
	var memberID *string
	if member != nil {
		memberName = member.Name
		memberID = &member.ID
	}

	_ = s.bus.Publish(ctx, newEvent(events.EventIssueAssigned, ic.Issue.ID, events.IssueAssignedPayload{
		DepartmentCode: department.Code,
		MemberID:       memberID,
		MemberName:     memberName,
		SLAHours:       slaHours,
		SLADeadline:    deadline,
	}))
	recordAudit(ctx, s.issueEvents, s.logger, ic.Issue.ID, string(events.EventIssueAssigned), s.Name(), map[string]any{
		"department_code": department.Code,
		"member_name":     memberName,
		"sla_hours":       slaHours,
	})

	return Outcome{
		Decision:  department.Code,
		Reasoning: "routed by category coverage",
		Result: map[string]any{
			"department_code": department.Code,
			"member_name":     memberName,
			"sla_hours":       slaHours,
			"sla_deadline":    deadline.Format(time.RFC3339),
		},
	}, nil
}

// chooseDepartment prefers direct category coverage, then an oracle
// judgment over the candidates, then the first active department.
func (s *routingStage) chooseDepartment(ctx context.Context, issue *domain.Issue, departments []domain.Department) *domain.Department {
	if issue.Category != nil {
		for i := range departments {
			if departments[i].HandlesCategory(*issue.Category) {
				return &departments[i]
			}
		}
	}

	options := make([]oracle.DepartmentOption, len(departments))
	for i, dept := range departments {
		options[i] = oracle.DepartmentOption{
			Code:       dept.Code,
			Name:       dept.Name,
			Categories: dept.Categories,
		}
	}
	code, err := s.oracle.RouteDepartment(ctx, categoryOrEmpty(issue), issue.Description, options)
	if err == nil {
		for i := range departments {
			if departments[i].Code == code {
				return &departments[i]
			}
		}
	} else {
		s.logger.Warn("routing judgment unavailable, using first active department",
			zap.String("issue_id", issue.ID), zap.Error(err))
	}
	return &departments[0]
}

// assignMember picks the least loaded member with capacity, preferring
// locality, then city, then anyone in the department. The workload
// increment is atomic; a lost race moves on to the next candidate.
func (s *routingStage) assignMember(ctx context.Context, issue *domain.Issue, department *domain.Department) *domain.Member {
	active := true
	filters := []repository.MemberFilter{}
	if issue.Locality != nil {
		filters = append(filters, repository.MemberFilter{
			DepartmentID: &department.ID, Locality: issue.Locality, WithCapacity: true, Active: &active,
		})
	}
	if issue.City != nil {
		filters = append(filters, repository.MemberFilter{
			DepartmentID: &department.ID, City: issue.City, WithCapacity: true, Active: &active,
		})
	}
	filters = append(filters, repository.MemberFilter{
		DepartmentID: &department.ID, WithCapacity: true, Active: &active,
	})

	for _, filter := range filters {
		members, err := s.members.List(ctx, filter)
		if err != nil {
			s.logger.Warn("failed to list members for assignment",
				zap.String("issue_id", issue.ID), zap.Error(err))
			continue
		}
		for i := range members {
			if err := s.members.IncrementWorkload(ctx, members[i].ID); err != nil {
				continue
			}
			return &members[i]
		}
	}

	s.logger.Info("no member with capacity, assigning department only",
		zap.String("issue_id", issue.ID),
		zap.String("department_code", department.Code))
	return nil
}

func (s *routingStage) slaHours(issue *domain.Issue, department *domain.Department) int {
	if issue.Priority != 0 {
		return s.sla.HoursForPriority(issue.Priority)
	}
	if department.DefaultSLAHours > 0 {
		return department.DefaultSLAHours
	}
	return s.sla.HoursForPriority(domain.PriorityMedium)
}

// Package complaint handles partner reports: each report is stored and the
// reported fingerprint is banned once enough distinct reporters agree. A
// single reporter can never cause a ban on their own.
package complaint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pairchat/backend/internal/analysis"
	"pairchat/backend/internal/config"
	"pairchat/backend/internal/models"
	"pairchat/backend/internal/storage"
)

// Severity levels accepted in a report.
const (
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityCritical = "Critical"
)

// Outcome describes what a report led to.
type Outcome struct {
	Banned      bool
	BanDuration time.Duration
}

// Service handles the business logic for complaints.
type Service struct {
	Storage storage.Storage
	log     *slog.Logger
	now     func() time.Time
}

// NewService creates a new complaint service.
func NewService(s storage.Storage, log *slog.Logger) *Service {
	return &Service{Storage: s, log: log, now: time.Now}
}

// HandleComplaint stores a report against target and bans target when the
// thresholds are reached. A reporter gets one report per target and room.
func (s *Service) HandleComplaint(ctx context.Context, reporter, target, roomID, severity, reason string) (Outcome, error) {
	if reporter == "" || target == "" || reporter == target {
		return Outcome{}, fmt.Errorf("invalid report parties: %w", models.ErrValidation)
	}
	severity = normalizeSeverity(severity)
	if len(reason) > config.MaxTextLength {
		reason = reason[:config.MaxTextLength]
	}

	dup, err := s.Storage.HasComplaint(ctx, reporter, target, roomID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check complaint: %w", err)
	}
	if dup {
		return Outcome{}, fmt.Errorf("%s already reported in room %s: %w", target, roomID, models.ErrDuplicateRequest)
	}

	c := &models.Complaint{
		ReporterFingerprint: reporter,
		TargetFingerprint:   target,
		RoomID:              roomID,
		Severity:            severity,
		Reason:              reason,
		Status:              "new",
		CreatedAt:           s.now(),
	}
	if err := s.Storage.SaveComplaint(ctx, c); err != nil {
		return Outcome{}, fmt.Errorf("save complaint: %w", err)
	}
	s.log.Info("complaint filed", "target", target, "room_id", roomID, "severity", severity)

	return s.CheckForBan(ctx, target, analysis.GetWeight(severity))
}

// CheckForBan bans fingerprint once enough distinct reporters filed within
// the frequency window; a critical report needs CriticalBanReporters of them.
// Targets reported by many people in the escalation window get longer bans.
func (s *Service) CheckForBan(ctx context.Context, fingerprint string, weight int) (Outcome, error) {
	now := s.now()
	reporters, err := s.Storage.CountReportersSince(ctx, fingerprint, now.Add(-config.BanFrequencyWindow))
	if err != nil {
		return Outcome{}, fmt.Errorf("count reporters: %w", err)
	}
	if reporters < reportersNeeded(weight) {
		return Outcome{}, nil
	}

	total, err := s.Storage.CountReportersSince(ctx, fingerprint, now.Add(-config.BanEscalationWindow))
	if err != nil {
		return Outcome{}, fmt.Errorf("count reporters: %w", err)
	}
	duration := getBanDuration(banLevel(total))
	if err := s.Storage.BanUser(ctx, fingerprint, "reported by chat partners", duration); err != nil {
		return Outcome{}, fmt.Errorf("ban %s: %w", fingerprint, err)
	}
	s.log.Warn("fingerprint banned", "fingerprint", fingerprint, "duration", duration, "reporters_24h", reporters, "reporters_7d", total)
	return Outcome{Banned: true, BanDuration: duration}, nil
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func reportersNeeded(weight int) int64 {
	if weight >= config.BanWeightThreshold {
		return config.CriticalBanReporters
	}
	return config.BanThresholdReporters
}

// banLevel maps the number of reporters in the escalation window to a level.
func banLevel(reporters int64) int {
	switch {
	case reporters <= config.BanThresholdReporters:
		return 1
	case reporters <= 2*config.BanThresholdReporters:
		return 2
	default:
		return 3
	}
}

func getBanDuration(level int) time.Duration {
	switch level {
	case 1:
		return config.BanLevel1Duration
	case 2:
		return config.BanLevel2Duration
	default:
		return config.BanLevel3Duration
	}
}

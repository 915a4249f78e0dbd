// Package jobs runs scheduled maintenance over member documents.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wannagonna/internal/metrics"
	"wannagonna/internal/repositories"
	"wannagonna/internal/services"
)

// RunReport summarises one reconciliation pass.
type RunReport struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	MembersScanned    int           `json:"members_scanned"`
	MembersRepaired   int           `json:"members_repaired"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	XPDebited         int64         `json:"xp_debited"`
	Failures          int           `json:"failures"`
}

// Reconciler removes duplicate earned-badge records and gives back the XP
// they credited.
type Reconciler struct {
	members  repositories.MemberRepository
	catalog  services.CatalogService
	logger   *zap.Logger
	schedule string
	cron     *cron.Cron

	mu      sync.Mutex
	lastRun *RunReport
	lastErr error
}

// NewReconciler creates a reconciler that runs on schedule, a standard cron
// expression or descriptor such as "@daily".
func NewReconciler(
	members repositories.MemberRepository,
	catalog services.CatalogService,
	logger *zap.Logger,
	schedule string,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@daily"
	}
	cl := cronLogger{logger.Sugar().Named("cron")}
	return &Reconciler{
		members:  members,
		catalog:  catalog,
		logger:   logger,
		schedule: schedule,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start registers the job and starts the scheduler.
func (r *Reconciler) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error("Reconciliation run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("Reconciler scheduled", zap.String("schedule", r.schedule))
	return nil
}

// Stop waits for a running pass to finish, or for ctx.
func (r *Reconciler) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce scans every member. Per-member failures are counted and the scan
// continues; only a failure to list members aborts the pass.
func (r *Reconciler) RunOnce(ctx context.Context) (*RunReport, error) {
	report := &RunReport{StartedAt: time.Now().UTC()}

	ids, err := r.members.ListIDs(ctx)
	if err != nil {
		r.finish(report, err)
		return nil, err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			r.finish(report, ctx.Err())
			return report, ctx.Err()
		}
		report.MembersScanned++

		result, err := r.reconcileMember(ctx, id)
		if err != nil {
			report.Failures++
			r.logger.Warn("Member reconciliation failed", zap.String("member_id", id), zap.Error(err))
			continue
		}
		if result == nil || len(result.Removed) == 0 {
			continue
		}

		report.MembersRepaired++
		report.DuplicatesRemoved += len(result.Removed)
		report.XPDebited += result.XPDebited
		r.logger.Info("Removed duplicate badges",
			zap.String("member_id", id),
			zap.Strings("badge_ids", result.Removed),
			zap.Int64("xp_debited", result.XPDebited),
		)
	}

	r.finish(report, nil)
	return report, nil
}

// reconcileMember resolves badge XP before entering the transaction so the
// transaction body makes no store reads of its own.
func (r *Reconciler) reconcileMember(ctx context.Context, memberID string) (*repositories.DedupeResult, error) {
	member, err := r.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(member.Badges))
	xp := make(map[string]int64)
	for _, b := range member.Badges {
		if !seen[b.ID] {
			seen[b.ID] = true
			continue
		}
		if _, ok := xp[b.ID]; ok {
			continue
		}
		badge, err := r.catalog.FindBadgeByID(ctx, b.ID)
		switch {
		case err == nil:
			xp[b.ID] = badge.XP
		case services.IsErrorType(err, services.ErrTypeCatalogMiss):
			xp[b.ID] = 0
		default:
			return nil, err
		}
	}
	if len(xp) == 0 {
		return nil, nil
	}

	return r.members.Dedupe(ctx, memberID, func(badgeID string) int64 {
		return xp[badgeID]
	})
}

func (r *Reconciler) finish(report *RunReport, err error) {
	report.Duration = time.Since(report.StartedAt)
	metrics.RecordReconcile(err == nil && report.Failures == 0, report.DuplicatesRemoved)

	r.mu.Lock()
	r.lastRun = report
	r.lastErr = err
	r.mu.Unlock()

	r.logger.Info("Reconciliation finished",
		zap.Int("members_scanned", report.MembersScanned),
		zap.Int("members_repaired", report.MembersRepaired),
		zap.Int("duplicates_removed", report.DuplicatesRemoved),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)
}

// LastRun returns the most recent report, or nil before the first pass.
func (r *Reconciler) LastRun() *RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// HealthCheck reports the error of the last pass.
func (r *Reconciler) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr != nil {
		return fmt.Errorf("last reconciliation failed: %w", r.lastErr)
	}
	return nil
}

func (r *Reconciler) ServiceName() string {
	return "reconciler"
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ services.HealthChecker = (*Reconciler)(nil)

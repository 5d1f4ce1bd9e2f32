// Package plans enforces per-plan upload and run limits.
package plans

import (
	"context"
	"time"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/storage/repo"
)

// Limit bounds one plan.
type Limit struct {
	MaxFiles   int `mapstructure:"max_files" json:"maxFiles"`
	RunsPerDay int `mapstructure:"runs_per_day" json:"runsPerDay"`
}

// DefaultLimits are used when configuration leaves a plan out.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		core.PlanFree:       {MaxFiles: 5, RunsPerDay: 1},
		core.PlanPro:        {MaxFiles: 25, RunsPerDay: 20},
		core.PlanEnterprise: {MaxFiles: 100, RunsPerDay: 1000},
	}
}

// Limiter checks and records usage.
type Limiter struct {
	limits map[string]Limit
	repo   repo.Repository
	now    func() time.Time
}

// NewLimiter creates a Limiter. Plans missing from limits use DefaultLimits.
func NewLimiter(r repo.Repository, limits map[string]Limit) *Limiter {
	merged := DefaultLimits()
	for plan, l := range limits {
		merged[plan] = l
	}
	return &Limiter{limits: merged, repo: r, now: time.Now}
}

// LimitFor returns the limit of plan; unknown plans get the free limit.
func (l *Limiter) LimitFor(plan string) Limit {
	if lim, ok := l.limits[plan]; ok {
		return lim
	}
	return l.limits[core.PlanFree]
}

func (l *Limiter) today() string {
	return l.now().UTC().Format("2006-01-02")
}

// AllowUpload rejects uploads above the plan file limit and otherwise adds
// files to today's usage.
func (l *Limiter) AllowUpload(ctx context.Context, user core.User, files int) error {
	lim := l.LimitFor(user.Plan)
	_, err := l.repo.UpdateUsage(ctx, user.ID, l.today(), func(u *core.Usage) error {
		if files > lim.MaxFiles {
			return core.WithMessage(core.ErrPlanLimit, "Upload exceeds plan file limit").WithDetails(map[string]any{
				"message":  "Upload exceeds plan file limit",
				"action":   "upgrade",
				"plan":     user.Plan,
				"maxFiles": lim.MaxFiles,
			})
		}
		u.FilesUploaded += files
		return nil
	})
	return err
}

// AllowRun rejects a run when today's runs reached the plan limit and
// otherwise counts it.
func (l *Limiter) AllowRun(ctx context.Context, user core.User) error {
	lim := l.LimitFor(user.Plan)
	_, err := l.repo.UpdateUsage(ctx, user.ID, l.today(), func(u *core.Usage) error {
		if u.Runs >= lim.RunsPerDay {
			return core.WithMessage(core.ErrPlanLimit, "Daily run limit reached").WithDetails(map[string]any{
				"message": "Daily run limit reached",
				"action":  "upgrade",
				"plan":    user.Plan,
				"maxRuns": lim.RunsPerDay,
			})
		}
		u.Runs++
		return nil
	})
	return err
}

// Usage returns today's usage for user.
func (l *Limiter) Usage(ctx context.Context, user core.User) (core.Usage, error) {
	return l.repo.UpdateUsage(ctx, user.ID, l.today(), func(*core.Usage) error { return nil })
}

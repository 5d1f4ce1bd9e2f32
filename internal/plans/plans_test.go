package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/storage/repo"
)

func TestLimitFor(t *testing.T) {
	l := NewLimiter(repo.NewMemoryStore(0), map[string]Limit{core.PlanPro: {MaxFiles: 30, RunsPerDay: 40}})

	assert.Equal(t, Limit{MaxFiles: 5, RunsPerDay: 1}, l.LimitFor(core.PlanFree))
	assert.Equal(t, Limit{MaxFiles: 30, RunsPerDay: 40}, l.LimitFor(core.PlanPro))
	assert.Equal(t, Limit{MaxFiles: 100, RunsPerDay: 1000}, l.LimitFor(core.PlanEnterprise))
	assert.Equal(t, l.LimitFor(core.PlanFree), l.LimitFor("platinum"))
}

func TestAllowUpload(t *testing.T) {
	l := NewLimiter(repo.NewMemoryStore(0), nil)
	ctx := context.Background()
	user := core.User{ID: "u1", Plan: core.PlanFree}

	require.NoError(t, l.AllowUpload(ctx, user, 5))

	err := l.AllowUpload(ctx, user, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPlanLimit))

	var coded *core.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "upgrade", coded.Details["action"])
	assert.Equal(t, 5, coded.Details["maxFiles"])
	assert.Equal(t, "Upload exceeds plan file limit", coded.Details["message"])

	usage, _ := l.Usage(ctx, user)
	assert.Equal(t, 5, usage.FilesUploaded)
}

func TestAllowRun_DailyLimit(t *testing.T) {
	l := NewLimiter(repo.NewMemoryStore(0), nil)
	ctx := context.Background()
	user := core.User{ID: "u1", Plan: core.PlanFree}

	day := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day }

	require.NoError(t, l.AllowRun(ctx, user))

	err := l.AllowRun(ctx, user)
	require.ErrorIs(t, err, core.ErrPlanLimit)
	var coded *core.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 1, coded.Details["maxRuns"])
	assert.Equal(t, "Daily run limit reached", coded.Message)

	day = day.Add(2 * time.Hour)
	assert.NoError(t, l.AllowRun(ctx, user), "limit resets on the next UTC day")
}

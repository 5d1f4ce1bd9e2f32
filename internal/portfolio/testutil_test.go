package portfolio

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/storage/object"
	"github.com/newthinker/equicurve/internal/storage/repo"
)

type tradeLeg struct {
	number   int
	at       string
	signal   string
	price    float64
	position float64
	pnl      float64
	runup    float64
	drawdown float64
}

func tradesCSV(legs ...tradeLeg) []byte {
	var b strings.Builder
	b.WriteString("Trade #,Type (Long/Short),Date/Time,Signal,Price,Position size,Net P&L,Run-up,Drawdown,Cumulative P&L\n")
	for _, l := range legs {
		fmt.Fprintf(&b, "%d,Long,%s,%s,%g,%g,%g,%g,%g,%g\n",
			l.number, l.at, l.signal, l.price, l.position, l.pnl, l.runup, l.drawdown, l.pnl)
	}
	return []byte(b.String())
}

type fixture struct {
	svc     *Service
	repo    *repo.MemoryStore
	objects *object.LocalFS
	user    core.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	objects, err := object.NewLocalFS(t.TempDir(), "uploads")
	require.NoError(t, err)
	require.NoError(t, objects.EnsureBucket(context.Background()))
	r := repo.NewMemoryStore(10)
	svc := NewService(objects, r, Options{}, nil)
	return &fixture{svc: svc, repo: r, objects: objects, user: core.User{ID: "user-1", Plan: core.PlanPro}}
}

// seed stores one batch with a file per ticker.
func (f *fixture) seed(t *testing.T, batchID string, files map[string][]byte, order ...string) {
	t.Helper()
	ctx := context.Background()
	batch := core.Batch{ID: batchID, UserID: f.user.ID, StrategyName: "Demo", CreatedAt: time.Now()}
	for _, ticker := range order {
		key := fmt.Sprintf("%s/%s-Demo_%s_2024-01-01.csv", batchID, ticker, ticker)
		require.NoError(t, f.objects.Put(ctx, key, files[ticker], object.ContentTypeCSV))
		batch.Files = append(batch.Files, core.FileRecord{
			ID:        "file-" + ticker,
			BatchID:   batchID,
			Ticker:    ticker,
			Strategy:  "Demo",
			Filename:  fmt.Sprintf("Demo_%s_2024-01-01.csv", ticker),
			ObjectKey: key,
		})
	}
	require.NoError(t, f.repo.CreateBatch(ctx, batch))
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

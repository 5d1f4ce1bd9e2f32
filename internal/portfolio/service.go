// Package portfolio runs an equal-weight simulation over the files of a batch.
package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/ingest"
	"github.com/newthinker/equicurve/internal/storage/object"
	"github.com/newthinker/equicurve/internal/storage/repo"
)

// Request asks for a run over one batch.
type Request struct {
	BatchID      string    `json:"batchId" validate:"required"`
	TotalCapital float64   `json:"totalCapital" validate:"gte=0"`
	Currency     string    `json:"currency"`
	DateRange    DateRange `json:"dateRange"`
	RiskFreeRate float64   `json:"riskFreeRate" validate:"gte=0,lt=1"`
}

// Result is the output of a run, also what is persisted and listed later.
type Result struct {
	RunID        string     `json:"runId"`
	BatchID      string     `json:"batchId"`
	Currency     string     `json:"currency"`
	TotalCapital float64    `json:"totalCapital"`
	DateRange    DateRange  `json:"dateRange"`
	CreatedAt    time.Time  `json:"createdAt"`
	EquityCurve  []Point    `json:"equityCurve"`
	BuyHoldCurve []Point    `json:"buyHoldCurve"`
	Drawdown     []Point    `json:"drawdown"`
	KPIs         KPIs       `json:"kpis"`
	Sections     Sections   `json:"sections"`
	TradesTable  []core.Row `json:"tradesTable"`
}

// Options holds run defaults.
type Options struct {
	DefaultCapital  float64
	DefaultCurrency string
	// LoadConcurrency bounds parallel object reads; 0 means 4.
	LoadConcurrency int
}

// Service executes and stores portfolio runs.
type Service struct {
	objects object.Store
	repo    repo.Repository
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(objects object.Store, r repo.Repository, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultCapital <= 0 {
		opts.DefaultCapital = 100_000
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	if opts.LoadConcurrency <= 0 {
		opts.LoadConcurrency = 4
	}
	return &Service{
		objects: objects,
		repo:    r,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

type tickerData struct {
	series Series
	trades []Trade
	rows   []core.Row
}

// Run simulates the batch and persists the result.
func (s *Service) Run(ctx context.Context, user core.User, req Request) (*Result, error) {
	batch, err := s.ownedBatch(ctx, user, req.BatchID)
	if err != nil {
		return nil, err
	}
	if len(batch.Files) == 0 {
		return nil, core.ErrEmptyBatch
	}

	currency := req.Currency
	if currency == "" {
		currency = s.opts.DefaultCurrency
	}
	currency, err = NormalizeCurrency(currency)
	if err != nil {
		return nil, core.WithMessage(core.ErrInvalidRequest, err.Error())
	}
	if req.DateRange.From != nil && req.DateRange.To != nil && req.DateRange.From.After(*req.DateRange.To) {
		return nil, core.WithMessage(core.ErrInvalidRequest, "dateRange start is after end")
	}

	capital := req.TotalCapital
	if capital == 0 {
		capital = s.opts.DefaultCapital
	}
	perTicker := capital / float64(len(batch.Files))

	started := s.now()
	data := make([]tickerData, len(batch.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.LoadConcurrency)
	for i, f := range batch.Files {
		g.Go(func() error {
			td, err := s.loadTicker(gctx, f, perTicker, req.DateRange)
			if err != nil {
				return err
			}
			data[i] = td
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := make([]Series, 0, len(data))
	var trades []Trade
	table := []core.Row{}
	for _, td := range data {
		series = append(series, td.series)
		trades = append(trades, td.trades...)
		table = append(table, td.rows...)
	}

	curve := AlignDaily(series)
	kpis := ComputeKPIs(trades, curve)

	result := &Result{
		RunID:        uuid.NewString(),
		BatchID:      batch.ID,
		Currency:     currency,
		TotalCapital: capital,
		DateRange:    req.DateRange,
		CreatedAt:    s.now().UTC(),
		EquityCurve:  nonNil(curve),
		BuyHoldCurve: nonNil(BuyHoldCurve(curve)),
		Drawdown:     nonNil(DrawdownSeries(curve)),
		KPIs:         kpis,
		Sections:     BuildSections(kpis, trades, curve, req.RiskFreeRate),
		TradesTable:  table,
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, core.WrapError(core.ErrRunFailed, err)
	}
	record := core.RunRecord{
		ID:           result.RunID,
		BatchID:      batch.ID,
		Currency:     currency,
		TotalCapital: capital,
		DateStart:    req.DateRange.From,
		DateEnd:      req.DateRange.To,
		CreatedAt:    result.CreatedAt,
		Result:       encoded,
	}
	if err := s.repo.SaveRun(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("portfolio run completed",
		zap.String("run_id", result.RunID),
		zap.String("batch_id", batch.ID),
		zap.Int("tickers", len(batch.Files)),
		zap.Int("trades", len(trades)),
		zap.Duration("elapsed", s.now().Sub(started)),
	)
	return result, nil
}

func (s *Service) loadTicker(ctx context.Context, f core.FileRecord, capital float64, r DateRange) (tickerData, error) {
	raw, err := s.objects.Get(ctx, f.ObjectKey)
	if err != nil {
		return tickerData{}, core.WrapError(core.ErrStorageFailed, fmt.Errorf("read %s: %w", f.ObjectKey, err))
	}
	table, err := ingest.Load(f.ObjectKey, raw)
	if err != nil {
		return tickerData{}, core.WrapError(core.ErrRunFailed, fmt.Errorf("parse %s: %w", f.Filename, err))
	}
	trades, err := ExtractTrades(f.Ticker, table.Rows)
	if err != nil {
		return tickerData{}, core.WrapError(core.ErrRunFailed, err)
	}
	trades = FilterTrades(trades, r)

	return tickerData{
		series: Series{Ticker: f.Ticker, Capital: capital, Points: BuildEquity(trades, capital)},
		trades: trades,
		rows:   filterRows(table.Rows, r),
	}, nil
}

// filterRows keeps rows whose Date/Time lies in r; unparsable times are
// dropped only when a bound is set.
func filterRows(rows []core.Row, r DateRange) []core.Row {
	if r.From == nil && r.To == nil {
		return rows
	}
	out := make([]core.Row, 0, len(rows))
	for _, row := range rows {
		at, err := ParseTime(row[ingest.ColDateTime])
		if err != nil {
			continue
		}
		if r.Contains(at) {
			out = append(out, row)
		}
	}
	return out
}

func nonNil(points []Point) []Point {
	if points == nil {
		return []Point{}
	}
	return points
}

// ownedBatch hides batches of other users behind ErrBatchNotFound.
func (s *Service) ownedBatch(ctx context.Context, user core.User, batchID string) (*core.Batch, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != user.ID {
		return nil, core.ErrBatchNotFound
	}
	return batch, nil
}

// ListRuns returns the persisted runs of a batch, newest first.
func (s *Service) ListRuns(ctx context.Context, user core.User, batchID string) ([]Result, error) {
	if _, err := s.ownedBatch(ctx, user, batchID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListRuns(ctx, batchID)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		var r Result
		if err := json.Unmarshal(rec.Result, &r); err != nil {
			return nil, core.WrapError(core.ErrRunFailed, fmt.Errorf("stored run %s malformed: %w", rec.ID, err))
		}
		results = append(results, r)
	}
	return results, nil
}

// GetRun returns one persisted run owned by user.
func (s *Service) GetRun(ctx context.Context, user core.User, runID string) (*Result, error) {
	rec, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedBatch(ctx, user, rec.BatchID); err != nil {
		return nil, core.ErrRunNotFound
	}
	var r Result
	if err := json.Unmarshal(rec.Result, &r); err != nil {
		return nil, core.WrapError(core.ErrRunFailed, err)
	}
	return &r, nil
}

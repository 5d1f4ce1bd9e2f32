// Package upload computes summary statistics for a set of files, one file
// at a time, reporting parse progress as it goes.
package upload

import (
	"context"

	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/stats"
	"github.com/newthinker/equicurve/internal/tabular"
)

// File is one file to summarise.
type File struct {
	Name string
	Data []byte
}

// Progress is reported while a file is parsed.
type Progress struct {
	File     string  `json:"file"`
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

// Overall is the completed share of the whole set.
func (p Progress) Overall() float64 {
	if p.Total == 0 {
		return 1
	}
	return (float64(p.Index) + p.Fraction) / float64(p.Total)
}

// ProgressFunc receives progress updates. It is called from the processing
// goroutine and must not block for long.
type ProgressFunc func(Progress)

// FileSummary is the outcome for one file. Error is set when parsing failed,
// in which case Stats is zero.
type FileSummary struct {
	File  string        `json:"file"`
	Rows  int           `json:"rows"`
	Stats stats.Summary `json:"stats"`
	Error string        `json:"error,omitempty"`
}

// Processor parses files sequentially and summarises each.
type Processor struct {
	riskFreeRate float64
	logger       *zap.Logger
}

// NewProcessor creates a Processor using riskFreeRate for every file.
func NewProcessor(riskFreeRate float64, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{riskFreeRate: riskFreeRate, logger: logger}
}

// Process handles files in order. A file that cannot be parsed yields a
// summary carrying the error and processing moves on. ctx is checked between
// files only; a file already being parsed runs to completion.
func (p *Processor) Process(ctx context.Context, files []File, onProgress ProgressFunc) ([]FileSummary, error) {
	summaries := make([]FileSummary, 0, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}

		report := func(fraction float64) {
			if onProgress != nil {
				onProgress(Progress{File: f.Name, Index: i, Total: len(files), Fraction: fraction})
			}
		}
		report(0)

		rows, err := tabular.Parse(f.Name, f.Data, report)
		if err != nil {
			p.logger.Warn("failed to parse upload",
				zap.String("file", f.Name),
				zap.Error(err),
			)
			summaries = append(summaries, FileSummary{File: f.Name, Error: err.Error()})
			report(1)
			continue
		}

		summary := stats.Compute(rows, p.riskFreeRate)
		summaries = append(summaries, FileSummary{File: f.Name, Rows: len(rows), Stats: summary})

		p.logger.Debug("file summarised",
			zap.String("file", f.Name),
			zap.Int("rows", len(rows)),
			zap.Int("sample_count", summary.SampleCount),
		)
	}
	return summaries, nil
}

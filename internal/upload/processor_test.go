package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProcess_SequentialWithProgress(t *testing.T) {
	files := []File{
		{Name: "a.csv", Data: []byte("Date,Close\n2024-01-01,100\n2024-01-02,110\n2024-01-03,121\n")},
		{Name: "b.csv", Data: []byte("Date,Equity\n2024-01-01,100\n2024-01-02,50\n2024-01-03,100\n")},
	}

	var updates []Progress
	summaries, err := NewProcessor(0, nil).Process(context.Background(), files, func(p Progress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "a.csv", summaries[0].File)
	assert.Equal(t, 3, summaries[0].Rows)
	assert.InDelta(t, 0.10, summaries[0].Stats.MeanReturn, 1e-9)
	assert.Equal(t, -0.5, summaries[1].Stats.MaxDrawdown)

	// file order is preserved and each file ends at 1.0
	require.NotEmpty(t, updates)
	lastIndex := 0
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.Index, lastIndex)
		assert.Equal(t, 2, u.Total)
		lastIndex = u.Index
	}
	assert.Equal(t, Progress{File: "b.csv", Index: 1, Total: 2, Fraction: 1}, updates[len(updates)-1])
	assert.Equal(t, 1.0, updates[len(updates)-1].Overall())
}

func TestProcess_ParseFailureContinues(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	files := []File{
		{Name: "empty.csv", Data: nil},
		{Name: "ok.csv", Data: []byte("Close\n1\n2\n")},
	}

	summaries, err := NewProcessor(0, zap.New(core)).Process(context.Background(), files, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.NotEmpty(t, summaries[0].Error)
	assert.Zero(t, summaries[0].Stats.SampleCount)
	assert.Empty(t, summaries[1].Error)
	assert.Equal(t, 2, summaries[1].Stats.SampleCount)

	assert.Equal(t, 1, logs.FilterMessage("failed to parse upload").Len())
}

func TestProcess_CancelledBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	files := []File{
		{Name: "a.csv", Data: []byte("Close\n1\n2\n")},
		{Name: "b.csv", Data: []byte("Close\n1\n2\n")},
	}

	summaries, err := NewProcessor(0, nil).Process(ctx, files, func(p Progress) {
		if p.Fraction == 1 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, summaries, 1, "the file being parsed completes")
}

func TestProgress_Overall(t *testing.T) {
	assert.Equal(t, 0.75, Progress{Index: 1, Total: 2, Fraction: 0.5}.Overall())
	assert.Equal(t, 1.0, Progress{}.Overall())
}

func TestProcess_SemicolonExport(t *testing.T) {
	files := []File{{Name: "eu.csv", Data: []byte("Date;Close\n2024-01-01;100\n2024-01-02;110\n")}}

	summaries, err := NewProcessor(0, nil).Process(context.Background(), files, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	assert.Equal(t, 2, summaries[0].Rows)
	require.NotNil(t, summaries[0].Stats.PriceColumn)
	assert.Equal(t, "Close", *summaries[0].Stats.PriceColumn)
	assert.InDelta(t, 0.10, summaries[0].Stats.MeanReturn, 1e-9)
}

package watermark

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestDateRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end civil.Date
		want       []civil.Date
	}{
		{
			name:  "single day",
			start: date(2024, 3, 1), end: date(2024, 3, 1),
			want: []civil.Date{date(2024, 3, 1)},
		},
		{
			name:  "across leap day",
			start: date(2024, 2, 28), end: date(2024, 3, 1),
			want: []civil.Date{date(2024, 2, 28), date(2024, 2, 29), date(2024, 3, 1)},
		},
		{
			name:  "end before start",
			start: date(2024, 3, 2), end: date(2024, 3, 1),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateRange(tt.start, tt.end))
		})
	}
}

func TestNextWindow(t *testing.T) {
	s := State{LastDate: date(2024, 3, 1)}

	assert.Equal(t,
		[]civil.Date{date(2024, 3, 2), date(2024, 3, 3)},
		NextWindow(s, date(2024, 3, 4), 1))
	assert.Empty(t, NextWindow(s, date(2024, 3, 2), 1), "up to date")
}

func TestTracker_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	tr := NewTracker(store, "state/watermark.json")

	_, err = tr.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoState))

	want := State{
		LastDate:  date(2024, 3, 1),
		UpdatedAt: time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC),
		Batches:   4,
	}
	require.NoError(t, tr.Save(ctx, want))

	got, err := tr.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.LastDate, got.LastDate)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, 4, got.Batches)

	raw, err := store.Get(ctx, "state/watermark.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_date":"2024-03-01"`)
}

func TestTracker_CorruptState(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "wm.json", []byte("not json"), "application/json"))

	_, err = NewTracker(store, "wm.json").Load(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoState))
}

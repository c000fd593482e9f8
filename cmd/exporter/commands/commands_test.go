package commands

import (
	"bytes"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := parseDate("date", "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 29}, d)

	_, err = parseDate("date", "29/02/2024")
	assert.EqualError(t, err, `--date: expected YYYY-MM-DD, got "29/02/2024"`)
}

func TestSubcommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "backfill", "resume", "new-members", "ls"} {
		assert.Contains(t, names, want)
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, pipeline.DateResult{
		Date:    civil.Date{Year: 2024, Month: 3, Day: 1},
		Batches: 3,
		Records: 120,
		Keys:    []string{"a", "b"},
		Failed:  []int{2},
	})
	assert.Equal(t, "2024-03-01: 3 batches, 120 records, 2 objects, failed batches [2]\n", buf.String())
}

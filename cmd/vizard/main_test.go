package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vizard/internal/models"
)

func TestGoldenSelection(t *testing.T) {
	tests := []struct {
		name    string
		missing bool
		suite   bool
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "full run"},
		{name: "missing only", missing: true},
		{name: "suites", suite: true, args: []string{"Buttons", "Forms"}, want: []string{"Buttons", "Forms"}},
		{name: "suite without names", suite: true, wantErr: true},
		{name: "names without suite", args: []string{"Buttons"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selection, err := goldenSelection(tt.missing, tt.suite, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.missing, selection.MissingOnly)
			assert.Equal(t, tt.want, selection.Suites)
		})
	}
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	var out bytes.Buffer

	printRuns(&out, []*models.RunRecord{{
		ID:           "run-1",
		Command:      models.CommandTest,
		StartedAt:    start,
		FinishedAt:   start.Add(1500 * time.Millisecond),
		Tests:        2,
		Permutations: 4,
		Failures:     1,
	}})

	assert.Contains(t, out.String(), "COMMAND")
	assert.Contains(t, out.String(), "failed")
	assert.Contains(t, out.String(), "1.5s")
	assert.Contains(t, out.String(), "run-1")
}

func TestPrintRuns_Empty(t *testing.T) {
	var out bytes.Buffer
	printRuns(&out, nil)
	assert.Equal(t, "No runs recorded\n", out.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"make-golden", "test", "compile", "history", "version"} {
		assert.True(t, names[name], name)
	}
}

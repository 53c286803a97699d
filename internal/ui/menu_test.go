package ui_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/flood-mapper/internal/datacube"
	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/internal/flood"
	"github.com/forest-guardian/flood-mapper/internal/ui"
	"github.com/forest-guardian/flood-mapper/output"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	requests []delivery.Request
	err      error
}

func (f *fakeRunner) Run(_ context.Context, req delivery.Request) (*delivery.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	grid := datacube.Grid{CRS: "EPSG:4326", GeoTransform: [6]float64{16, 0.5, 0, 49, 0, -0.5}, Width: 2, Height: 2}
	c := datacube.New(datacube.DimTime, 1, grid)
	c.Time = []time.Time{time.Date(2022, 10, 23, 5, 25, 0, 0, time.UTC)}
	if err := c.SetVar(flood.VarDecision, []float64{1, 0, math.NaN(), 1}); err != nil {
		return nil, err
	}
	summaries, err := flood.Summarize(c, flood.VarDecision, 0.5)
	if err != nil {
		return nil, err
	}
	return &delivery.Result{RequestID: "0f8fad5b-d9cb-469f-a165-70867728950e", Mode: req.Mode, Variable: flood.VarDecision, Threshold: 0.5, Cube: c, Summaries: summaries}, nil
}

type fakeNotifier struct {
	errors, successes []string
}

func (f *fakeNotifier) SendError(_ context.Context, msg string) error {
	f.errors = append(f.errors, msg)
	return nil
}

func (f *fakeNotifier) SendSuccess(_ context.Context, msg string) error {
	f.successes = append(f.successes, msg)
	return nil
}

func newMenu(t *testing.T, input string, runner ui.Runner, notifier ui.Notifier) (*ui.Menu, *bytes.Buffer, string) {
	t.Helper()
	var out bytes.Buffer
	clock := clockwork.NewFakeClockAt(time.Date(2022, 10, 25, 12, 0, 0, 0, time.UTC))
	dir := t.TempDir()
	console := ui.NewConsole(strings.NewReader(input), &out, clock)
	opts := output.Options{Dir: dir, Formats: []string{output.FormatGeoJSON, output.FormatCSV}}
	return ui.NewMenu(console, runner, notifier, opts), &out, dir
}

func TestMenu_MapFloods(t *testing.T) {
	runner := &fakeRunner{}
	notifier := &fakeNotifier{}
	menu, out, dir := newMenu(t, "1\n16,48,17,49\n2022-10\n4\n", runner, notifier)

	menu.Show(context.Background())

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, delivery.ModeDecision, req.Mode)
	assert.Equal(t, time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC), req.Datetime.Start)
	assert.Equal(t, 48.0, req.BBox.Min.Y())

	assert.Contains(t, out.String(), "Successful analysis!")
	assert.Contains(t, out.String(), "Exiting...")
	assert.Contains(t, out.String(), "2022-10-23T05:25:00Z")
	assert.FileExists(t, filepath.Join(dir, "decision_2022-10-31_0f8fad5b.geojson"))
	assert.FileExists(t, filepath.Join(dir, "decision_2022-10-31_0f8fad5b_summary.csv"))
	require.Len(t, notifier.successes, 1)
	assert.Empty(t, notifier.errors)
}

func TestMenu_ProbabilityToday(t *testing.T) {
	runner := &fakeRunner{}
	menu, _, _ := newMenu(t, "2\n16,48,17,49\ntoday\n", runner, nil)

	menu.Show(context.Background())

	require.Len(t, runner.requests, 1)
	assert.Equal(t, delivery.ModeProbability, runner.requests[0].Mode)
	assert.Equal(t, time.Date(2022, 10, 25, 0, 0, 0, 0, time.UTC), runner.requests[0].Datetime.Start)
}

func TestMenu_ReportsFailures(t *testing.T) {
	runner := &fakeRunner{err: errors.New("hpar: orbit not found")}
	notifier := &fakeNotifier{}
	menu, out, _ := newMenu(t, "7\nabc\n1\n16,48,17\n1\n16,48,17,49\n2022-10\n", runner, notifier)

	menu.Show(context.Background())

	assert.Contains(t, out.String(), "value must be between 1 and 4")
	assert.Contains(t, out.String(), "invalid number: abc")
	assert.Contains(t, out.String(), "invalid bounding box")
	assert.Contains(t, out.String(), "Error mapping floods: hpar: orbit not found")
	assert.Len(t, runner.requests, 1)
	require.Len(t, notifier.errors, 1)
	assert.Empty(t, notifier.successes)
}

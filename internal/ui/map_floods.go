package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/output"
)

// MapFloods handles the UI for mapping floods over a bounding box and time range
func (m *Menu) MapFloods(ctx context.Context, mode string) {
	m.console.PrintWarning("- The bounding box is given in degrees as minLon,minLat,maxLon,maxLat.\n- Results are written to " + m.export.Dir + ".")

	bbox, err := m.console.ReadBBox("Enter the bounding box (minLon,minLat,maxLon,maxLat): ")
	if err != nil {
		m.console.PrintError(err.Error())
		return
	}
	interval, err := m.console.ReadDatetime("Enter the time range (e.g. 2022-10-11/2022-10-25 | today): ")
	if err != nil {
		m.console.PrintError(err.Error())
		return
	}

	res, err := m.runner.Run(ctx, delivery.Request{BBox: bbox, Datetime: interval, Mode: mode})
	if err != nil {
		msg := fmt.Sprintf("Error mapping floods: %s", err.Error())
		m.console.PrintError(msg)
		m.notify(ctx, true, "Flood mapper\n\n"+msg)
		return
	}

	opts := m.export
	opts.Name = fmt.Sprintf("%s_%s_%s", res.Mode, interval.End.Format("2006-01-02"), shortID(res.RequestID))
	paths, err := output.Export(res, opts)
	if err != nil {
		msg := fmt.Sprintf("Error writing results: %s", err.Error())
		m.console.PrintError(msg)
		m.notify(ctx, true, "Flood mapper\n\n"+msg)
		return
	}

	m.printSummaries(res)
	msg := fmt.Sprintf("Successful analysis!\nResults located at:\n%s", strings.Join(paths, "\n"))
	m.console.PrintSuccess(msg)
	m.notify(ctx, false, "Flood mapper\n\n"+msg)
}

func (m *Menu) printSummaries(res *delivery.Result) {
	fmt.Fprintf(m.console.out, "\n%-22s %8s %8s %9s\n", "time", "valid", "flooded", "fraction")
	for _, s := range res.Summaries {
		fmt.Fprintf(m.console.out, "%-22s %8d %8d %8.2f%%\n", s.Time.UTC().Format("2006-01-02T15:04:05Z"), s.Valid, s.Flooded, 100*s.Fraction)
	}
}

func (m *Menu) notify(ctx context.Context, failed bool, msg string) {
	if m.notifier == nil {
		return
	}
	send := m.notifier.SendSuccess
	if failed {
		send = m.notifier.SendError
	}
	if err := send(ctx, msg); err != nil {
		m.console.PrintError(fmt.Sprintf("Failed to send notification: %s", err.Error()))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Package ui is the interactive terminal menu of the flood mapper.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/forest-guardian/flood-mapper/internal/delivery"
	"github.com/forest-guardian/flood-mapper/output"
)

// Runner maps floods for one request.
type Runner interface {
	Run(ctx context.Context, req delivery.Request) (*delivery.Result, error)
}

// Notifier reports finished and failed runs.
type Notifier interface {
	SendError(ctx context.Context, msg string) error
	SendSuccess(ctx context.Context, msg string) error
}

type Menu struct {
	console  *Console
	runner   Runner
	notifier Notifier
	export   output.Options
}

type menuOption struct {
	title   string
	handler func(ctx context.Context)
}

// NewMenu creates the menu. Results are exported with the given options; the
// export name is derived from each request.
func NewMenu(console *Console, runner Runner, notifier Notifier, export output.Options) *Menu {
	return &Menu{console: console, runner: runner, notifier: notifier, export: export}
}

func (m *Menu) PrintBanner() {
	figure1 := figure.NewFigure("Flood", "isometric1", true)
	figure2 := figure.NewFigure("Mapper", "isometric1", true)
	banner := color.New(color.FgCyan)
	banner.Fprintln(m.console.out, figure1.String())
	banner.Fprintln(m.console.out, figure2.String())
	fmt.Fprintln(m.console.out)
}

// Show displays the main menu until the user exits or the input ends.
func (m *Menu) Show(ctx context.Context) {
	exit := false
	options := []menuOption{
		{"Map floods (flood / non-flood decision)", func(ctx context.Context) { m.MapFloods(ctx, delivery.ModeDecision) }},
		{"Map flood probability", func(ctx context.Context) { m.MapFloods(ctx, delivery.ModeProbability) }},
		{"Show accepted datetime expressions", func(context.Context) { m.showDatetimeHelp() }},
		{"Exit the application", func(context.Context) { fmt.Fprintln(m.console.out, "Exiting..."); exit = true }},
	}

	for !exit {
		m.console.PrintInfo("===================\n")
		for i, opt := range options {
			m.console.PrintInfo(fmt.Sprintf("%d. %s\n", i+1, opt.title))
		}
		choice, err := m.console.ReadInt("Please enter your choice: ", 1, len(options))
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			m.console.PrintError(err.Error())
			continue
		}
		options[choice-1].handler(ctx)
	}
}

func (m *Menu) showDatetimeHelp() {
	m.console.PrintWarning(`- A year, month or day covers the whole period: 2022, 2022-10, 2022-10-11.
- Instants use RFC3339: 2022-10-11T05:25:00Z.
- Ranges join two expressions with '/': 2022-10-01/2022-10-25.
- '..' leaves one end open: 2022-10-01/.. ends now.`)
}

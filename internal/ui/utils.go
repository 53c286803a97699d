package ui

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/forest-guardian/flood-mapper/internal/catalog"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
)

var (
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	success = color.New(color.FgGreen)
	info    = color.New(color.FgBlue)
)

// Console reads answers from in and prints prompts and results to out.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	clock clockwork.Clock
}

func NewConsole(in io.Reader, out io.Writer, clock clockwork.Clock) *Console {
	return &Console{in: bufio.NewReader(in), out: out, clock: clock}
}

// PrintWarning displays a warning message with consistent formatting
func (c *Console) PrintWarning(message string) {
	warning.Fprintf(c.out, "\nWarning:\n%s\n", message)
}

// PrintError displays an error message with consistent formatting
func (c *Console) PrintError(message string) {
	failure.Fprintf(c.out, "\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func (c *Console) PrintSuccess(message string) {
	success.Fprintf(c.out, "\n%s\n", message)
}

func (c *Console) PrintInfo(message string) {
	info.Fprint(c.out, message)
}

// ReadString reads a line with trimming. It returns io.EOF once the input is
// exhausted.
func (c *Console) ReadString(prompt string) (string, error) {
	c.PrintInfo(prompt)
	input, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadInt reads an integer in [min, max].
func (c *Console) ReadInt(prompt string, min, max int) (int, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

func (c *Console) ReadBBox(prompt string) (orb.Bound, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return orb.Bound{}, err
	}
	return catalog.ParseBBoxString(input)
}

// ReadDatetime reads a datetime expression. "today" maps to the current day.
func (c *Console) ReadDatetime(prompt string) (catalog.Interval, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return catalog.Interval{}, err
	}
	if input == "today" {
		input = c.clock.Now().UTC().Format("2006-01-02")
	}
	return catalog.ParseDatetime(input, c.clock)
}

// Package datacube holds the labeled raster cube shared by every stage of the
// flood mapping pipeline and the pure transforms applied to it.
//
// A Cube is a stack of 2D rasters on a common Grid. The leading axis is named
// either "time" or "orbit" and every variable stores len(steps)*Height*Width
// values in step-major, row-major order. Transforms never modify their
// receiver; they return a new cube.
package datacube

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

const (
	DimTime  = "time"
	DimOrbit = "orbit"
)

var (
	ErrOrbitNotFound   = errors.New("orbit not found")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrGridMismatch    = errors.New("grid mismatch")
	ErrUnknownVariable = errors.New("unknown variable")
)

type Cube struct {
	Dim   string
	Time  []time.Time
	Orbit []string
	Grid  Grid

	steps int
	order []string
	vars  map[string][]float64
}

// New creates an empty cube with the given leading axis and number of steps.
// Time and Orbit labels are assigned by the caller.
func New(dim string, steps int, grid Grid) *Cube {
	return &Cube{
		Dim:   dim,
		Grid:  grid,
		steps: steps,
		vars:  make(map[string][]float64),
	}
}

func (c *Cube) Steps() int {
	return c.steps
}

// Vars returns the variable names in insertion order.
func (c *Cube) Vars() []string {
	return slices.Clone(c.order)
}

func (c *Cube) Has(name string) bool {
	_, ok := c.vars[name]
	return ok
}

// Var returns the backing data of a variable. The slice is shared with the
// cube and must be treated as read-only.
func (c *Cube) Var(name string) ([]float64, error) {
	data, ok := c.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return data, nil
}

// Step returns the raster of one variable at step i, or nil if the variable is
// absent. The slice is shared with the cube.
func (c *Cube) Step(name string, i int) []float64 {
	data, ok := c.vars[name]
	if !ok {
		return nil
	}
	n := c.Grid.Pixels()
	return data[i*n : (i+1)*n]
}

// SetVar attaches data to the cube under name, replacing any previous value.
func (c *Cube) SetVar(name string, data []float64) error {
	if want := c.steps * c.Grid.Pixels(); len(data) != want {
		return fmt.Errorf("variable %s has %d values, cube %s needs %d", name, len(data), c.Grid, want)
	}
	if _, ok := c.vars[name]; !ok {
		c.order = append(c.order, name)
	}
	c.vars[name] = data
	return nil
}

// Validate checks that the coordinate labels match the number of steps.
func (c *Cube) Validate() error {
	if c.Time != nil && len(c.Time) != c.steps {
		return fmt.Errorf("cube has %d steps but %d time labels", c.steps, len(c.Time))
	}
	if c.Orbit != nil && len(c.Orbit) != c.steps {
		return fmt.Errorf("cube has %d steps but %d orbit labels", c.steps, len(c.Orbit))
	}
	return nil
}

func (c *Cube) Clone() *Cube {
	out := c.shell(c.steps)
	out.Time = slices.Clone(c.Time)
	out.Orbit = slices.Clone(c.Orbit)
	for _, name := range c.order {
		out.order = append(out.order, name)
		out.vars[name] = slices.Clone(c.vars[name])
	}
	return out
}

func (c *Cube) shell(steps int) *Cube {
	return &Cube{
		Dim:   c.Dim,
		Grid:  c.Grid,
		steps: steps,
		vars:  make(map[string][]float64, len(c.vars)),
	}
}

// RenameVar returns a copy of the cube with variable from renamed to to.
func (c *Cube) RenameVar(from, to string) (*Cube, error) {
	if !c.Has(from) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, from)
	}
	if from != to && c.Has(to) {
		return nil, fmt.Errorf("%w: variable %s already exists", ErrSchemaMismatch, to)
	}
	out := c.Clone()
	out.vars[to] = out.vars[from]
	if from != to {
		delete(out.vars, from)
	}
	for i, name := range out.order {
		if name == from {
			out.order[i] = to
		}
	}
	return out, nil
}

// WithDim returns a copy of the cube whose leading axis is named dim.
func (c *Cube) WithDim(dim string) *Cube {
	out := c.Clone()
	out.Dim = dim
	return out
}

// WithOrbits returns a copy of the cube carrying the given orbit labels.
func (c *Cube) WithOrbits(orbits []string) (*Cube, error) {
	if len(orbits) != c.steps {
		return nil, fmt.Errorf("got %d orbit labels for %d steps", len(orbits), c.steps)
	}
	out := c.Clone()
	out.Orbit = slices.Clone(orbits)
	return out, nil
}

// Only returns a copy restricted to the named variables.
func (c *Cube) Only(names ...string) (*Cube, error) {
	out := c.shell(c.steps)
	out.Time = slices.Clone(c.Time)
	out.Orbit = slices.Clone(c.Orbit)
	for _, name := range names {
		data, err := c.Var(name)
		if err != nil {
			return nil, err
		}
		out.order = append(out.order, name)
		out.vars[name] = slices.Clone(data)
	}
	return out, nil
}

// Take returns the steps at the given indices, in that order.
func (c *Cube) Take(indices []int) *Cube {
	out := c.shell(len(indices))
	n := c.Grid.Pixels()
	if c.Time != nil {
		out.Time = make([]time.Time, len(indices))
	}
	if c.Orbit != nil {
		out.Orbit = make([]string, len(indices))
	}
	for j, i := range indices {
		if c.Time != nil {
			out.Time[j] = c.Time[i]
		}
		if c.Orbit != nil {
			out.Orbit[j] = c.Orbit[i]
		}
	}
	for _, name := range c.order {
		src := c.vars[name]
		dst := make([]float64, len(indices)*n)
		for j, i := range indices {
			copy(dst[j*n:(j+1)*n], src[i*n:(i+1)*n])
		}
		out.order = append(out.order, name)
		out.vars[name] = dst
	}
	return out
}

// DropAllNaN removes the steps in which every value of the given variables is
// NaN. With no names, all variables are considered.
func (c *Cube) DropAllNaN(names ...string) (*Cube, error) {
	if len(names) == 0 {
		names = c.order
	}
	for _, name := range names {
		if !c.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
	}
	keep := make([]int, 0, c.steps)
	for i := 0; i < c.steps; i++ {
		for _, name := range names {
			if !allNaN(c.Step(name, i)) {
				keep = append(keep, i)
				break
			}
		}
	}
	return c.Take(keep), nil
}

// SortByTime returns the steps ordered by time. Equal timestamps keep their
// original relative order.
func (c *Cube) SortByTime() (*Cube, error) {
	if c.Time == nil {
		return nil, errors.New("cube has no time labels")
	}
	idx := make([]int, c.steps)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return c.Time[idx[a]].Before(c.Time[idx[b]])
	})
	return c.Take(idx), nil
}

// GroupByTime averages, skipping NaN, the steps that share a timestamp. The
// result is sorted by time and carries no orbit labels.
func (c *Cube) GroupByTime() (*Cube, error) {
	if c.Time == nil {
		return nil, errors.New("cube has no time labels")
	}
	var (
		keys   []time.Time
		groups [][]int
	)
	for i, t := range c.Time {
		j := slices.IndexFunc(keys, func(k time.Time) bool { return k.Equal(t) })
		if j < 0 {
			keys = append(keys, t)
			groups = append(groups, []int{i})
			continue
		}
		groups[j] = append(groups[j], i)
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]].Before(keys[order[b]]) })

	out := c.groupMean(reorder(groups, order))
	out.Time = make([]time.Time, len(order))
	for j, g := range order {
		out.Time[j] = keys[g]
	}
	return out, nil
}

// GroupByOrbit averages, skipping NaN, the steps that share an orbit label.
// The result is sorted by orbit label and carries no time labels.
func (c *Cube) GroupByOrbit() (*Cube, error) {
	if c.Orbit == nil {
		return nil, errors.New("cube has no orbit labels")
	}
	var (
		keys   []string
		groups [][]int
	)
	for i, o := range c.Orbit {
		j := slices.Index(keys, o)
		if j < 0 {
			keys = append(keys, o)
			groups = append(groups, []int{i})
			continue
		}
		groups[j] = append(groups[j], i)
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })

	out := c.groupMean(reorder(groups, order))
	out.Orbit = make([]string, len(order))
	for j, g := range order {
		out.Orbit[j] = keys[g]
	}
	return out, nil
}

func reorder(groups [][]int, order []int) [][]int {
	out := make([][]int, len(order))
	for j, g := range order {
		out[j] = groups[g]
	}
	return out
}

func (c *Cube) groupMean(groups [][]int) *Cube {
	out := c.shell(len(groups))
	n := c.Grid.Pixels()
	for _, name := range c.order {
		src := c.vars[name]
		data := make([]float64, len(groups)*n)
		for j, members := range groups {
			for p := 0; p < n; p++ {
				sum, count := 0.0, 0
				for _, i := range members {
					v := src[i*n+p]
					if math.IsNaN(v) {
						continue
					}
					sum += v
					count++
				}
				if count == 0 {
					data[j*n+p] = math.NaN()
					continue
				}
				data[j*n+p] = sum / float64(count)
			}
		}
		out.order = append(out.order, name)
		out.vars[name] = data
	}
	return out
}

// SelectOrbits returns the steps labeled with the given orbits, in that order.
// A missing orbit is an ErrOrbitNotFound.
func (c *Cube) SelectOrbits(orbits []string) (*Cube, error) {
	if c.Orbit == nil {
		return nil, errors.New("cube has no orbit labels")
	}
	idx := make([]int, len(orbits))
	for j, o := range orbits {
		i := slices.Index(c.Orbit, o)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s (available: %v)", ErrOrbitNotFound, o, c.Orbit)
		}
		idx[j] = i
	}
	return c.Take(idx), nil
}

// MaskWhere returns a copy in which every variable is NaN at the pixels where
// drop reports true for the static layer value.
func (c *Cube) MaskWhere(layer []float64, drop func(v float64) bool) (*Cube, error) {
	n := c.Grid.Pixels()
	if len(layer) != n {
		return nil, fmt.Errorf("%w: mask has %d pixels, cube %s", ErrGridMismatch, len(layer), c.Grid)
	}
	out := c.Clone()
	for p, v := range layer {
		if !drop(v) {
			continue
		}
		for _, name := range out.order {
			data := out.vars[name]
			for i := 0; i < out.steps; i++ {
				data[i*n+p] = math.NaN()
			}
		}
	}
	return out, nil
}

func allNaN(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Mosaic collapses the steps into a single one that keeps, for every pixel,
// the value of the first step where it is not NaN. Labels are dropped.
func (c *Cube) Mosaic() *Cube {
	out := c.shell(1)
	n := c.Grid.Pixels()
	for _, name := range c.order {
		src := c.vars[name]
		data := make([]float64, n)
		for p := range data {
			data[p] = math.NaN()
			for i := 0; i < c.steps; i++ {
				if v := src[i*n+p]; !math.IsNaN(v) {
					data[p] = v
					break
				}
			}
		}
		out.order = append(out.order, name)
		out.vars[name] = data
	}
	return out
}

package datacube

import (
	"fmt"
	"slices"
	"time"
)

// Schema names the variables a cube of a given kind must carry before it can
// take part in a merge.
type Schema struct {
	Name string
	Dim  string
	Vars []string
}

func (s Schema) Validate(c *Cube) error {
	if c == nil {
		return fmt.Errorf("%w: %s cube is missing", ErrSchemaMismatch, s.Name)
	}
	if s.Dim != "" && c.Dim != s.Dim {
		return fmt.Errorf("%w: %s cube is indexed by %q, want %q", ErrSchemaMismatch, s.Name, c.Dim, s.Dim)
	}
	for _, name := range s.Vars {
		if !c.Has(name) {
			return fmt.Errorf("%w: %s cube has no variable %s (has %v)", ErrSchemaMismatch, s.Name, name, c.order)
		}
	}
	return c.Validate()
}

// Merge joins cubes that share a grid and a leading axis into one cube holding
// the union of their variables. Variable names must not collide and labels
// present on more than one cube must agree step by step.
func Merge(cubes ...*Cube) (*Cube, error) {
	if len(cubes) == 0 {
		return nil, fmt.Errorf("%w: nothing to merge", ErrSchemaMismatch)
	}
	first := cubes[0]
	out := first.shell(first.steps)
	for _, c := range cubes {
		if c.Dim != first.Dim {
			return nil, fmt.Errorf("%w: cannot merge %q indexed cube with %q", ErrSchemaMismatch, c.Dim, first.Dim)
		}
		if !c.Grid.Equal(first.Grid) {
			return nil, fmt.Errorf("%w: %s vs %s", ErrGridMismatch, c.Grid, first.Grid)
		}
		if c.steps != first.steps {
			return nil, fmt.Errorf("%w: %d steps vs %d", ErrSchemaMismatch, c.steps, first.steps)
		}
		if c.Time != nil {
			if out.Time != nil && !slices.EqualFunc(out.Time, c.Time, func(a, b time.Time) bool { return a.Equal(b) }) {
				return nil, fmt.Errorf("%w: time labels differ", ErrSchemaMismatch)
			}
			out.Time = slices.Clone(c.Time)
		}
		if c.Orbit != nil {
			if out.Orbit != nil && !slices.Equal(out.Orbit, c.Orbit) {
				return nil, fmt.Errorf("%w: orbit labels differ: %v vs %v", ErrSchemaMismatch, out.Orbit, c.Orbit)
			}
			out.Orbit = slices.Clone(c.Orbit)
		}
		for _, name := range c.order {
			if out.Has(name) {
				return nil, fmt.Errorf("%w: variable %s present in more than one cube", ErrSchemaMismatch, name)
			}
			out.order = append(out.order, name)
			out.vars[name] = slices.Clone(c.vars[name])
		}
	}
	return out, nil
}

// Package matrix expands a job's configuration axes into the concrete list
// of cells to run. Expansion is a pure function, kept separate from
// execution so the cell order is reproducible and testable on its own.
package matrix

import (
	"fmt"
	"strings"

	"github.com/vk/gridci/internal/config"
)

// Binding is one axis→value assignment inside a cell.
type Binding struct {
	Axis  string
	Value string
}

// Cell is one concrete configuration instance of a job's matrix. Bindings
// keep axis declaration order. A cell never shares mutable state with its
// siblings; Index is its stable position in the expansion order.
type Cell struct {
	Index    int
	Bindings []Binding
}

// Value returns the cell's value for the named axis.
func (c Cell) Value(axis string) (string, bool) {
	for _, b := range c.Bindings {
		if b.Axis == axis {
			return b.Value, true
		}
	}
	return "", false
}

// String renders the cell as "axis=value,axis=value", or "default" for the
// single cell of an empty matrix. Used as the cell label in results and logs.
func (c Cell) String() string {
	if len(c.Bindings) == 0 {
		return "default"
	}
	parts := make([]string, len(c.Bindings))
	for i, b := range c.Bindings {
		parts[i] = b.Axis + "=" + b.Value
	}
	return strings.Join(parts, ",")
}

// Expand produces the Cartesian product of the matrix axes in a stable,
// deterministic order: axes as declared, values as declared, with the last
// axis varying fastest. A nil or empty matrix yields exactly one default
// cell. An axis with zero values is a configuration error, signalled rather
// than silently producing zero cells.
func Expand(m *config.Matrix) ([]Cell, error) {
	if m == nil || len(m.Axes) == 0 {
		return []Cell{{Index: 0}}, nil
	}

	total := 1
	for _, axis := range m.Axes {
		if len(axis.Values) == 0 {
			return nil, fmt.Errorf("matrix axis %q has no values", axis.Name)
		}
		total *= len(axis.Values)
	}

	cells := make([]Cell, total)
	for i := 0; i < total; i++ {
		bindings := make([]Binding, len(m.Axes))
		remainder := i
		// Decompose the index like an odometer, last axis fastest.
		for a := len(m.Axes) - 1; a >= 0; a-- {
			axis := m.Axes[a]
			bindings[a] = Binding{Axis: axis.Name, Value: axis.Values[remainder%len(axis.Values)]}
			remainder /= len(axis.Values)
		}
		cells[i] = Cell{Index: i, Bindings: bindings}
	}
	return cells, nil
}

// Package keytmpl renders cache key templates. A key template is an HCL
// string template ("deps-${trigger.event}-${files(\"Cargo.toml\")}")
// evaluated per cell against the matrix bindings, the trigger context, and
// a files() function that digests declared input files.
package keytmpl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/matrix"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	ctyconvert "github.com/zclconf/go-cty/cty/convert"
)

// Renderer evaluates cache key expressions. It is safe for concurrent use:
// all state is immutable after construction.
type Renderer struct {
	funcs map[string]function.Function
}

// New builds a Renderer whose files() function resolves relative paths
// against baseDir (normally the directory the orchestrator was invoked in).
func New(baseDir string) *Renderer {
	return &Renderer{
		funcs: map[string]function.Function{
			"files": newFilesFunc(baseDir),
		},
	}
}

// Parse turns a template source string (as written in a YAML definition)
// into the same expression form the HCL loader produces natively.
func Parse(src string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "cache-key", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing cache key template %q: %w", src, diags)
	}
	return expr, nil
}

// Render evaluates a cache key expression for one cell. The scope exposes
// matrix.<axis> for the cell's bindings and trigger.event plus every
// trigger metadata entry under trigger.<name>.
func (r *Renderer) Render(expr hcl.Expression, cell matrix.Cell, trig config.TriggerContext) (string, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix":  matrixValue(cell),
			"trigger": triggerValue(trig),
		},
		Functions: r.funcs,
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating cache key: %w", diags)
	}
	val, err := ctyconvert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("cache key is not a string: %w", err)
	}
	if val.IsNull() {
		return "", fmt.Errorf("cache key evaluated to null")
	}
	return val.AsString(), nil
}

func matrixValue(cell matrix.Cell) cty.Value {
	if len(cell.Bindings) == 0 {
		return cty.EmptyObjectVal
	}
	vars := make(map[string]cty.Value, len(cell.Bindings))
	for _, b := range cell.Bindings {
		vars[b.Axis] = cty.StringVal(b.Value)
	}
	return cty.ObjectVal(vars)
}

func triggerValue(trig config.TriggerContext) cty.Value {
	vars := make(map[string]cty.Value, len(trig.Metadata)+1)
	for k, v := range trig.Metadata {
		vars[k] = cty.StringVal(v)
	}
	// The event name always wins over a metadata entry of the same name.
	vars["event"] = cty.StringVal(string(trig.Event))
	return cty.ObjectVal(vars)
}

// newFilesFunc builds the files(...) template function: it digests the
// contents of its file arguments into a short stable hex string, so keys
// change exactly when the declared inputs change.
func newFilesFunc(baseDir string) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{
			Name: "path",
			Type: cty.String,
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			paths := make([]string, len(args))
			for i, arg := range args {
				paths[i] = arg.AsString()
			}
			digest, err := hashFiles(baseDir, paths)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(digest), nil
		},
	})
}

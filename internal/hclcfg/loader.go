// Package hclcfg loads pipeline definitions written in HCL and translates
// them into the format-agnostic config model.
package hclcfg

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"

	ctyconvert "github.com/zclconf/go-cty/cty/convert"
)

// Loader implements config.Loader for .hcl pipeline files.
type Loader struct{}

// New creates an HCL loader.
func New() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".hcl"}
}

// LoadFile parses one HCL pipeline file into the agnostic model.
func (l *Loader) LoadFile(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing: %w", diags)
	}

	var r root
	if diags := gohcl.DecodeBody(file.Body, nil, &r); diags.HasErrors() {
		return nil, fmt.Errorf("decoding: %w", diags)
	}

	model := &config.Model{Pipeline: &config.Pipeline{}}
	for _, pb := range r.Pipelines {
		if model.Pipeline.Name == "" {
			model.Pipeline.Name = pb.Name
		}
		for _, jb := range pb.Jobs {
			job, err := translateJob(jb)
			if err != nil {
				return nil, err
			}
			model.Pipeline.Jobs = append(model.Pipeline.Jobs, job)
		}
	}

	logger.Debug("HCL pipeline file decoded.", "pipelines", len(r.Pipelines))
	return model, nil
}

func translateJob(jb *jobBlock) (*config.Job, error) {
	job := &config.Job{Name: jb.Name}
	for _, on := range jb.On {
		job.On = append(job.On, config.Event(on))
	}

	if jb.Matrix != nil {
		m, err := translateMatrix(jb.Name, jb.Matrix)
		if err != nil {
			return nil, err
		}
		job.Matrix = m
	}

	for _, sb := range jb.Steps {
		step, err := translateStep(jb.Name, sb)
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, step)
	}
	return job, nil
}

// translateMatrix reads the matrix block's attributes as axes. The
// hclsyntax body exposes each attribute's source range, which recovers the
// declaration order a plain attribute map would lose.
func translateMatrix(jobName string, mb *matrixBlock) (*config.Matrix, error) {
	body, ok := mb.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("job %q: matrix body is not native HCL syntax", jobName)
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	m := &config.Matrix{}
	for _, attr := range attrs {
		values, err := axisValues(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("job %q: matrix axis %q: %w", jobName, attr.Name, err)
		}
		m.Axes = append(m.Axes, config.Axis{Name: attr.Name, Values: values})
	}
	return m, nil
}

func axisValues(expr hcl.Expression) ([]string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("expected a list of values")
	}

	var values []string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		elem, err := ctyconvert.Convert(elem, cty.String)
		if err != nil {
			return nil, fmt.Errorf("axis value is not a string: %w", err)
		}
		values = append(values, elem.AsString())
	}
	return values, nil
}

func translateStep(jobName string, sb *stepBlock) (*config.Step, error) {
	step := &config.Step{
		Name:    sb.Name,
		Command: sb.Command,
		Env:     sb.Env,
	}

	if sb.Timeout != "" {
		d, err := time.ParseDuration(sb.Timeout)
		if err != nil {
			return nil, fmt.Errorf("job %q step %q: invalid timeout: %w", jobName, sb.Name, err)
		}
		step.Timeout = d
	}

	if sb.Cache != nil {
		step.Cache = &config.CacheBinding{
			Key:   sb.Cache.Key,
			Paths: sb.Cache.Paths,
		}
	}
	return step, nil
}

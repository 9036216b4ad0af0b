// Package yamlcfg loads pipeline definitions written in YAML and
// translates them into the same format-agnostic model the HCL loader
// produces. Cache key strings are parsed through the HCL template engine
// so both formats share one key-rendering path.
package yamlcfg

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/gridci/internal/config"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/keytmpl"
)

// Loader implements config.Loader for .yaml/.yml pipeline files.
type Loader struct{}

// New creates a YAML loader.
func New() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".yaml", ".yml"}
}

// document mirrors the YAML file layout. Jobs and matrix stay raw nodes:
// yaml.v3 mapping nodes keep document order, which the matrix expander
// depends on, while a Go map would shuffle it.
type document struct {
	Pipeline string    `yaml:"pipeline"`
	Jobs     yaml.Node `yaml:"jobs"`
}

type jobDoc struct {
	On     []string  `yaml:"on"`
	Matrix yaml.Node `yaml:"matrix"`
	Steps  []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Env     map[string]string `yaml:"env"`
	Timeout string            `yaml:"timeout"`
	Cache   *cacheDoc         `yaml:"cache"`
}

type cacheDoc struct {
	Key   string   `yaml:"key"`
	Paths []string `yaml:"paths"`
}

// LoadFile parses one YAML pipeline file into the agnostic model.
func (l *Loader) LoadFile(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	model := &config.Model{Pipeline: &config.Pipeline{Name: doc.Pipeline}}

	if doc.Jobs.Kind != 0 {
		if doc.Jobs.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("jobs must be a mapping of job name to job")
		}
		// Mapping node content alternates key, value.
		for i := 0; i+1 < len(doc.Jobs.Content); i += 2 {
			name := doc.Jobs.Content[i].Value
			var jd jobDoc
			if err := doc.Jobs.Content[i+1].Decode(&jd); err != nil {
				return nil, fmt.Errorf("job %q: %w", name, err)
			}
			job, err := translateJob(name, &jd)
			if err != nil {
				return nil, err
			}
			model.Pipeline.Jobs = append(model.Pipeline.Jobs, job)
		}
	}

	logger.Debug("YAML pipeline file decoded.", "jobs", len(model.Pipeline.Jobs))
	return model, nil
}

func translateJob(name string, jd *jobDoc) (*config.Job, error) {
	job := &config.Job{Name: name}
	for _, on := range jd.On {
		job.On = append(job.On, config.Event(on))
	}

	if jd.Matrix.Kind != 0 {
		m, err := translateMatrix(name, &jd.Matrix)
		if err != nil {
			return nil, err
		}
		job.Matrix = m
	}

	for i := range jd.Steps {
		step, err := translateStep(name, &jd.Steps[i])
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, step)
	}
	return job, nil
}

func translateMatrix(jobName string, node *yaml.Node) (*config.Matrix, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("job %q: matrix must be a mapping of axis name to values", jobName)
	}

	m := &config.Matrix{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		axis := node.Content[i].Value
		var values []string
		if err := node.Content[i+1].Decode(&values); err != nil {
			return nil, fmt.Errorf("job %q: matrix axis %q: %w", jobName, axis, err)
		}
		m.Axes = append(m.Axes, config.Axis{Name: axis, Values: values})
	}
	return m, nil
}

func translateStep(jobName string, sd *stepDoc) (*config.Step, error) {
	step := &config.Step{
		Name:    sd.Name,
		Command: sd.Command,
		Env:     sd.Env,
	}

	if sd.Timeout != "" {
		d, err := time.ParseDuration(sd.Timeout)
		if err != nil {
			return nil, fmt.Errorf("job %q step %q: invalid timeout: %w", jobName, sd.Name, err)
		}
		step.Timeout = d
	}

	if sd.Cache != nil {
		expr, err := keytmpl.Parse(sd.Cache.Key)
		if err != nil {
			return nil, fmt.Errorf("job %q step %q: %w", jobName, sd.Name, err)
		}
		step.Cache = &config.CacheBinding{
			Key:   expr,
			Paths: sd.Cache.Paths,
		}
	}
	return step, nil
}

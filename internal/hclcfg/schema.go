package hclcfg

import "github.com/hashicorp/hcl/v2"

// root is the top-level structure of a pipeline definition file.
type root struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
}

// pipelineBlock represents a `pipeline "name" { ... }` block.
type pipelineBlock struct {
	Name string      `hcl:"name,label"`
	Jobs []*jobBlock `hcl:"job,block"`
}

// jobBlock represents a `job "name" { ... }` block: its trigger events,
// optional matrix, and ordered steps.
type jobBlock struct {
	Name   string       `hcl:"name,label"`
	On     []string     `hcl:"on,optional"`
	Matrix *matrixBlock `hcl:"matrix,block"`
	Steps  []*stepBlock `hcl:"step,block"`
}

// matrixBlock keeps the raw body: each attribute is one axis whose name and
// source position carry the declaration order the expander must preserve.
type matrixBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// stepBlock represents a `step "name" { ... }` block.
type stepBlock struct {
	Name    string            `hcl:"name,label"`
	Command string            `hcl:"command"`
	Env     map[string]string `hcl:"env,optional"`
	Timeout string            `hcl:"timeout,optional"`
	Cache   *cacheBlock       `hcl:"cache,block"`
}

// cacheBlock represents the optional `cache { ... }` block of a step. Key
// stays an undecoded expression: it references per-cell variables that do
// not exist until dispatch time.
type cacheBlock struct {
	Key   hcl.Expression `hcl:"key"`
	Paths []string       `hcl:"paths"`
}

// Package config defines the format-agnostic pipeline definition model,
// the Loader interface for parsing it from various sources, and the
// validation applied before any cell executes.
//
// The `config.Model` is the single source of truth for the `matrix`,
// `runner` and `scheduler` packages. Concrete loaders, such as for HCL and
// YAML, are provided in separate packages and all emit the same model.
package config

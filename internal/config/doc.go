// Package config loads pipeline configuration and resolves file locations.
//
// Values are layered in increasing order of precedence:
//
//  1. Default()
//  2. a YAML file (ROADRISK_CONFIG, or roadrisk.yaml / configs/roadrisk.yaml)
//  3. ROADRISK_* environment variables, e.g. ROADRISK_NORMALIZE_JOIN_ON=code
//
// Every input and output location is derived from a single Paths value,
// built by NewPaths from the paths section. Stages receive a *Paths and
// never join directory strings on their own.
package config

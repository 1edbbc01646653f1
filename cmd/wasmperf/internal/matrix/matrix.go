// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matrix parses the experiment matrix and expands it into specs.
//
// # File Format
//
//	algorithms:            # alias: algs
//	  merge:
//	    - architectures:   # alias: arch
//	        - NATIVE
//	        - WASM_SINGLE - firefox - google-chrome
//	      runs:
//	        - parameters:  # alias: params
//	            SIZE: 100
//	            N_LEVELS: 2
//	          repetitions: 5   # alias: reps
//
// Algorithms and parameters keep their document order. Parameter values are
// kept verbatim as written in the file ("1e3" stays "1e3").
package matrix

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/egemengol/wasmperf/cmd/wasmperf/internal/naming"
)

// =============================================================================
// Types
// =============================================================================

// Matrix is the parsed experiment description.
type Matrix struct {
	Algorithms []Algorithm
}

// Algorithm is one algorithm with its comparison groups.
type Algorithm struct {
	Name        string
	Comparisons []Comparison
}

// Comparison crosses every architecture token with every run.
type Comparison struct {
	Architectures []string
	Runs          []Run

	// Line is the 1-based line of the comparison in the source file.
	Line int
}

// Run is one parameter set with its repetition count.
type Run struct {
	Parameters  naming.Params
	Repetitions int
	Line        int
}

// ParseError reports a structurally invalid matrix file.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("matrix line %d: %s", e.Line, msg)
	}
	return "matrix: " + msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Loading
// =============================================================================

// Load reads and parses a matrix file.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse parses a matrix document.
//
// # Description
//
// The document is walked as a yaml.Node tree rather than decoded into maps,
// because map decoding loses the order of algorithms and parameters and that
// order is part of every experiment's name.
//
// # Outputs
//
//   - *Matrix: The parsed matrix.
//   - error: *ParseError carrying the line of the first problem.
func Parse(data []byte) (*Matrix, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Msg: "invalid YAML", Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, &ParseError{Msg: "empty document"}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: root.Line, Msg: "top level must be a mapping"}
	}

	algs, err := lookup(root, "algorithms", "algs")
	if err != nil {
		return nil, err
	}
	if algs == nil {
		return nil, &ParseError{Line: root.Line, Msg: `missing "algorithms"`}
	}
	if algs.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: algs.Line, Msg: `"algorithms" must map algorithm names to comparison lists`}
	}

	m := &Matrix{}
	seen := map[string]bool{}
	for i := 0; i+1 < len(algs.Content); i += 2 {
		keyNode, valNode := algs.Content[i], algs.Content[i+1]
		if seen[keyNode.Value] {
			return nil, &ParseError{Line: keyNode.Line, Msg: fmt.Sprintf("duplicate algorithm %q", keyNode.Value)}
		}
		seen[keyNode.Value] = true

		alg := Algorithm{Name: keyNode.Value}
		if valNode.Kind != yaml.SequenceNode {
			return nil, &ParseError{Line: valNode.Line, Msg: fmt.Sprintf("algorithm %q must hold a list of comparisons", alg.Name)}
		}
		for _, compNode := range valNode.Content {
			comp, err := parseComparison(compNode)
			if err != nil {
				return nil, err
			}
			alg.Comparisons = append(alg.Comparisons, comp)
		}
		m.Algorithms = append(m.Algorithms, alg)
	}
	return m, nil
}

func parseComparison(node *yaml.Node) (Comparison, error) {
	comp := Comparison{Line: node.Line}
	if node.Kind != yaml.MappingNode {
		return comp, &ParseError{Line: node.Line, Msg: "comparison must be a mapping"}
	}
	if err := allowKeys(node, "architectures", "arch", "runs"); err != nil {
		return comp, err
	}

	archNode, err := lookup(node, "architectures", "arch")
	if err != nil {
		return comp, err
	}
	if archNode == nil {
		return comp, &ParseError{Line: node.Line, Msg: `comparison is missing "architectures"`}
	}
	comp.Architectures, err = scalarList(archNode)
	if err != nil {
		return comp, err
	}

	runsNode, err := lookup(node, "runs")
	if err != nil {
		return comp, err
	}
	if runsNode == nil || runsNode.Kind != yaml.SequenceNode {
		return comp, &ParseError{Line: node.Line, Msg: `comparison needs a "runs" list`}
	}
	for _, runNode := range runsNode.Content {
		run, err := parseRun(runNode)
		if err != nil {
			return comp, err
		}
		comp.Runs = append(comp.Runs, run)
	}
	return comp, nil
}

func parseRun(node *yaml.Node) (Run, error) {
	run := Run{Line: node.Line}
	if node.Kind != yaml.MappingNode {
		return run, &ParseError{Line: node.Line, Msg: "run must be a mapping"}
	}
	if err := allowKeys(node, "parameters", "params", "repetitions", "reps"); err != nil {
		return run, err
	}

	params, err := lookup(node, "parameters", "params")
	if err != nil {
		return run, err
	}
	if params != nil && params.Tag != "!!null" {
		if params.Kind != yaml.MappingNode {
			return run, &ParseError{Line: params.Line, Msg: "parameters must be a mapping"}
		}
		for i := 0; i+1 < len(params.Content); i += 2 {
			k, v := params.Content[i], params.Content[i+1]
			if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
				return run, &ParseError{Line: k.Line, Msg: fmt.Sprintf("parameter %q must be a scalar", k.Value)}
			}
			run.Parameters = append(run.Parameters, naming.Param{Key: k.Value, Value: v.Value})
		}
	}

	reps, err := lookup(node, "repetitions", "reps")
	if err != nil {
		return run, err
	}
	if reps == nil {
		return run, &ParseError{Line: node.Line, Msg: `run is missing "repetitions"`}
	}
	if err := reps.Decode(&run.Repetitions); err != nil {
		return run, &ParseError{Line: reps.Line, Msg: "repetitions must be an integer", Err: err}
	}
	return run, nil
}

// =============================================================================
// Node Helpers
// =============================================================================

// lookup returns the value for the first present key among names. Giving
// both a key and its alias is an error.
func lookup(mapping *yaml.Node, names ...string) (*yaml.Node, error) {
	var found *yaml.Node
	var foundName string
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		for _, name := range names {
			if key != name {
				continue
			}
			if found != nil {
				return nil, &ParseError{
					Line: mapping.Content[i].Line,
					Msg:  fmt.Sprintf("%q and %q both given", foundName, key),
				}
			}
			found, foundName = mapping.Content[i+1], key
		}
	}
	return found, nil
}

func allowKeys(mapping *yaml.Node, allowed ...string) error {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		ok := false
		for _, a := range allowed {
			if key.Value == a {
				ok = true
				break
			}
		}
		if !ok {
			return &ParseError{Line: key.Line, Msg: fmt.Sprintf("unknown key %q", key.Value)}
		}
	}
	return nil
}

// scalarList accepts a sequence of scalars or a single scalar.
func scalarList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, &ParseError{Line: item.Line, Msg: "architecture must be a string"}
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, &ParseError{Line: node.Line, Msg: "architectures must be a list of strings"}
	}
}

// ErrUnknownArchitecture is returned by ParseArchitecture for tokens that
// name no supported target.
var ErrUnknownArchitecture = errors.New("unknown architecture")

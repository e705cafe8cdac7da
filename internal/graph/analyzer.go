package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"auraforce/backend/pkg/models"
)

// ValidateGraph runs the path check and an explicit cycle-detection pass over
// the graph, stamps LastValidated on the graph metadata, and returns the
// aggregate result. Nothing is cached; every call recomputes from the graph
// and the filesystem.
func ValidateGraph(g *models.WorkflowGraph, bundleDir string) *models.ValidationResult {
	result := ValidatePaths(g, bundleDir)

	// Cycles are surfaced as warnings, not errors: the builder contract
	// admits cyclic declarations, so they must not flip the status.
	for _, cycle := range findCycles(g) {
		result.Issues = append(result.Issues, models.ValidationIssue{
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
		})
	}

	now := time.Now().UTC()
	g.Metadata.LastValidated = &now
	g.Metadata.ValidationStatus = result.Status
	return result
}

// MergeResolution folds dependency-resolver output into the graph, keyed by
// matching (name, type). A node with no matching entry keeps the state the
// path validator assigned. When multiple entries match one node (repeated
// references), the node is validated only if all of them resolved.
func MergeResolution(g *models.WorkflowGraph, deps []models.DependencyResolution) {
	type key struct {
		name string
		typ  models.NodeType
	}
	merged := make(map[key]*struct {
		resolved bool
		errs     []string
		path     string
	})
	for _, dep := range deps {
		k := key{dep.Name, dep.Type}
		m, ok := merged[k]
		if !ok {
			m = &struct {
				resolved bool
				errs     []string
				path     string
			}{resolved: true}
			merged[k] = m
		}
		if dep.Resolved {
			m.path = dep.PhysicalPath
		} else {
			m.resolved = false
			m.errs = append(m.errs, dep.Error)
		}
	}

	for _, node := range g.Nodes {
		m, ok := merged[key{node.Name, node.Type}]
		if !ok {
			continue
		}
		node.Validated = m.resolved
		node.ValidationErrors = m.errs
		if m.resolved && m.path != "" {
			node.Path = m.path
		}
	}

	for _, edge := range g.Edges {
		target := g.Node(edge.Target)
		edge.Validated = target != nil && target.Validated
	}
}

// Report merges node/edge counts with validation output.
func Report(g *models.WorkflowGraph, validation *models.ValidationResult) *models.GraphReport {
	byType := make(map[models.NodeType]int)
	var unvalidated []string
	for _, n := range g.Nodes {
		byType[n.Type]++
		if !n.Validated {
			unvalidated = append(unvalidated, n.ID)
		}
	}
	sort.Strings(unvalidated)
	return &models.GraphReport{
		WorkflowID:     g.Metadata.WorkflowID,
		NodeCount:      len(g.Nodes),
		EdgeCount:      len(g.Edges),
		NodesByType:    byType,
		Status:         validation.Status,
		Issues:         validation.Issues,
		UnvalidatedIDs: unvalidated,
		GeneratedAt:    time.Now().UTC(),
	}
}

// Export serializes the graph. Supported formats: "json" (default) and
// "yaml". The pretty flag only affects JSON.
func Export(g *models.WorkflowGraph, format string, pretty bool) (string, error) {
	switch format {
	case "", "json":
		var (
			out []byte
			err error
		)
		if pretty {
			out, err = json.MarshalIndent(g, "", "  ")
		} else {
			out, err = json.Marshal(g)
		}
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "yaml":
		out, err := yaml.Marshal(g)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

// findCycles runs a DFS with recursion-stack tracking and returns one node-id
// path per cycle found. Node order follows the graph's node slice, so
// repeated runs over the same graph report identical cycles.
func findCycles(g *models.WorkflowGraph) [][]string {
	adjacency := make(map[string][]string)
	for _, e := range g.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var cycles [][]string
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		state[id] = inStack
		stack = append(stack, id)
		for _, next := range adjacency[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inStack:
				// slice the current stack from the repeated node
				for i, sid := range stack {
					if sid == next {
						cycle := append(append([]string{}, stack[i:]...), next)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, n := range g.Nodes {
		if state[n.ID] == unvisited {
			visit(n.ID)
		}
	}
	return cycles
}

package models

import "time"

// NodeType classifies graph nodes built from a workflow document.
type NodeType string

const (
	NodeTypeWorkflow    NodeType = "workflow"
	NodeTypeAgent       NodeType = "agent"
	NodeTypeResource    NodeType = "resource"
	NodeTypeSubWorkflow NodeType = "sub_workflow"
)

// GraphNode is a vertex in the transient workflow graph.
type GraphNode struct {
	ID               string   `json:"id" yaml:"id"`
	Type             NodeType `json:"type" yaml:"type"`
	Name             string   `json:"name" yaml:"name"`
	Path             string   `json:"path,omitempty" yaml:"path,omitempty"`
	Validated        bool     `json:"validated" yaml:"validated"`
	ValidationErrors []string `json:"validation_errors,omitempty" yaml:"validationErrors,omitempty"`
}

// GraphEdge is a directed dependency between two nodes.
type GraphEdge struct {
	ID        string `json:"id" yaml:"id"`
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Validated bool   `json:"validated" yaml:"validated"`
}

// GraphMetadata carries per-build bookkeeping. LastValidated is stamped on
// every validation pass; the graph itself is never cached or persisted.
type GraphMetadata struct {
	WorkflowID       string     `json:"workflow_id" yaml:"workflowId"`
	ValidationStatus string     `json:"validation_status,omitempty" yaml:"validationStatus,omitempty"`
	LastValidated    *time.Time `json:"last_validated,omitempty" yaml:"lastValidated,omitempty"`
}

// WorkflowGraph is the in-memory dependency graph rebuilt from the source
// document on each request. It is never the source of truth; the filesystem
// bundle and the database row are.
type WorkflowGraph struct {
	Nodes    []*GraphNode  `json:"nodes" yaml:"nodes"`
	Edges    []*GraphEdge  `json:"edges" yaml:"edges"`
	Metadata GraphMetadata `json:"metadata" yaml:"metadata"`
}

// Node returns the node with the given id, or nil.
func (g *WorkflowGraph) Node(id string) *GraphNode {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// IssueSeverity ranks validation issues. Only error-severity issues make the
// aggregate status invalid.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is a single finding against a node or the graph as a whole.
type ValidationIssue struct {
	NodeID   string        `json:"node_id,omitempty"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// ValidationStatus values for a graph validation pass.
const (
	ValidationStatusValid   = "valid"
	ValidationStatusInvalid = "invalid"
)

// ValidationResult aggregates issues across all nodes. Status is "valid"
// only when zero error-severity issues exist.
type ValidationResult struct {
	Status string            `json:"status"`
	Issues []ValidationIssue `json:"issues"`
}

// ErrorCount returns the number of error-severity issues.
func (r *ValidationResult) ErrorCount() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			n++
		}
	}
	return n
}

// DependencyResolution is the per-dependency outcome of a resolver pass.
// Failure to resolve is recorded, never raised.
type DependencyResolution struct {
	Name         string   `json:"name"`
	Type         NodeType `json:"type"`
	PhysicalPath string   `json:"physical_path,omitempty"`
	Resolved     bool     `json:"resolved"`
	Error        string   `json:"error,omitempty"`
}

// GraphReport merges node/edge counts with validation output.
type GraphReport struct {
	WorkflowID     string            `json:"workflow_id"`
	NodeCount      int               `json:"node_count"`
	EdgeCount      int               `json:"edge_count"`
	NodesByType    map[NodeType]int  `json:"nodes_by_type"`
	Status         string            `json:"status"`
	Issues         []ValidationIssue `json:"issues,omitempty"`
	UnvalidatedIDs []string          `json:"unvalidated_node_ids,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

package graph

import (
	"fmt"

	"auraforce/backend/pkg/models"
)

// NodeID returns the deterministic graph node id for a dependency. Determinism
// keeps repeated validation passes comparable.
func NodeID(t models.NodeType, name string) string {
	return fmt.Sprintf("%s:%s", t, name)
}

// BuildGraph assembles the in-memory graph from parser output. Every
// referenced agent/resource/sub-workflow becomes one node (keyed by type and
// name); every declared reference becomes its own edge, so repeated
// references yield parallel edges. The builder performs no cycle detection;
// a self-referential workflow produces a self-loop the analyzer surfaces.
func BuildGraph(parsed *ParsedWorkflow, workflowID string) *models.WorkflowGraph {
	g := &models.WorkflowGraph{
		Metadata: models.GraphMetadata{WorkflowID: workflowID},
	}

	root := &models.GraphNode{
		ID:   NodeID(models.NodeTypeWorkflow, workflowID),
		Type: models.NodeTypeWorkflow,
		Name: parsed.Name,
	}
	g.Nodes = append(g.Nodes, root)

	seen := map[string]*models.GraphNode{root.ID: root}
	for i, dep := range parsed.Dependencies {
		id := NodeID(dep.Type, dep.Name)
		// A sub-workflow reference with the workflow's own name points back
		// at the root.
		if dep.Type == models.NodeTypeSubWorkflow && dep.Name == parsed.Name {
			id = root.ID
		}
		node, ok := seen[id]
		if !ok {
			node = &models.GraphNode{
				ID:   id,
				Type: dep.Type,
				Name: dep.Name,
				Path: dep.Path,
			}
			seen[id] = node
			g.Nodes = append(g.Nodes, node)
		}
		g.Edges = append(g.Edges, &models.GraphEdge{
			ID:     fmt.Sprintf("edge-%d", i),
			Source: root.ID,
			Target: node.ID,
		})
	}

	return g
}

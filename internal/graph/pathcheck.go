package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"auraforce/backend/internal/deploy"
	"auraforce/backend/pkg/models"
)

// ValidatePaths checks each node's declared or derived physical path against
// the bundle directory. Nodes failing the check are flagged in place with an
// error-severity issue. The aggregate status is "valid" only when zero
// error-severity issues exist.
func ValidatePaths(g *models.WorkflowGraph, bundleDir string) *models.ValidationResult {
	result := &models.ValidationResult{Status: models.ValidationStatusValid}

	for _, node := range g.Nodes {
		node.Validated = false
		node.ValidationErrors = nil

		path := node.Path
		if node.Type == models.NodeTypeWorkflow {
			path = deploy.BundleEntrypoint
		}
		switch {
		case path == "":
			// Sub-workflows carry no bundle path; the dependency resolver
			// owns their verdict and overrides this state when it matches.
			addIssue(result, node, models.SeverityError,
				fmt.Sprintf("node %s has no physical path", node.ID))
		case filepath.IsAbs(path) || strings.Contains(path, ".."):
			addIssue(result, node, models.SeverityError,
				fmt.Sprintf("node path %q is not a well-formed bundle path", path))
		default:
			full := filepath.Join(bundleDir, filepath.FromSlash(path))
			if _, err := os.Stat(full); err != nil {
				addIssue(result, node, models.SeverityError,
					fmt.Sprintf("path %q does not exist", path))
			} else {
				node.Validated = true
			}
		}
	}

	if result.ErrorCount() > 0 {
		result.Status = models.ValidationStatusInvalid
	}
	return result
}

func addIssue(result *models.ValidationResult, node *models.GraphNode, sev models.IssueSeverity, msg string) {
	result.Issues = append(result.Issues, models.ValidationIssue{
		NodeID: node.ID, Severity: sev, Message: msg,
	})
	if sev == models.SeverityError {
		node.ValidationErrors = append(node.ValidationErrors, msg)
	}
}

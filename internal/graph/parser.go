// Package graph builds and analyzes the transient dependency graph of a
// deployed workflow document.
package graph

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"auraforce/backend/internal/spec"
	"auraforce/backend/pkg/models"
)

// FormatMarkdown is the only supported document format: YAML front matter
// followed by a markdown body carrying @type/name references.
const FormatMarkdown = "markdown"

// Dependency is one declared or referenced dependency, in source order.
type Dependency struct {
	Name string
	Type models.NodeType
	// Path is the bundle-relative path the dependency is expected at, empty
	// for sub-workflows which resolve against deployed records instead.
	Path string
}

// ParsedWorkflow is the parser output consumed by the builder and resolver.
type ParsedWorkflow struct {
	Name         string
	Metadata     spec.Metadata
	Dependencies []Dependency
}

var refPattern = regexp.MustCompile(`@(agent|workflow|resource)/([A-Za-z0-9][A-Za-z0-9._/-]*)`)

// Parse extracts declared and referenced dependencies from a workflow
// document. Declaration order is preserved and repeated references are NOT
// deduplicated; downstream consumers rely on one entry per reference.
func Parse(documentText, format string) (*ParsedWorkflow, error) {
	if format != "" && format != FormatMarkdown {
		return nil, fmt.Errorf("unsupported document format %q", format)
	}

	front, body, ok := spec.SplitFrontMatter(documentText)
	parsed := &ParsedWorkflow{}
	if ok {
		if err := yaml.Unmarshal([]byte(front), &parsed.Metadata); err != nil {
			return nil, fmt.Errorf("parse front matter: %w", err)
		}
	}
	parsed.Name = parsed.Metadata.Name

	for _, a := range parsed.Metadata.Agents {
		parsed.Dependencies = append(parsed.Dependencies, Dependency{
			Name: a, Type: models.NodeTypeAgent, Path: "agents/" + a + ".md",
		})
	}
	for _, sw := range parsed.Metadata.SubWorkflows {
		parsed.Dependencies = append(parsed.Dependencies, Dependency{
			Name: sw, Type: models.NodeTypeSubWorkflow,
		})
	}
	for _, r := range parsed.Metadata.Resources {
		parsed.Dependencies = append(parsed.Dependencies, Dependency{
			Name: r, Type: models.NodeTypeResource, Path: r,
		})
	}

	for _, m := range refPattern.FindAllStringSubmatch(body, -1) {
		// sentence-final references drag punctuation into the match
		kind, name := m[1], strings.TrimRight(m[2], ".")
		switch kind {
		case "agent":
			parsed.Dependencies = append(parsed.Dependencies, Dependency{
				Name: name, Type: models.NodeTypeAgent, Path: "agents/" + name + ".md",
			})
		case "workflow":
			parsed.Dependencies = append(parsed.Dependencies, Dependency{
				Name: name, Type: models.NodeTypeSubWorkflow,
			})
		case "resource":
			parsed.Dependencies = append(parsed.Dependencies, Dependency{
				Name: name, Type: models.NodeTypeResource, Path: name,
			})
		}
	}

	return parsed, nil
}

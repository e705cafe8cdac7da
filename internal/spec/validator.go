// Package spec parses and validates uploaded workflow definitions before
// anything is persisted.
package spec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"auraforce/backend/pkg/models"
)

// Metadata is the parsed front-matter of a workflow document.
type Metadata struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	Author       string   `yaml:"author"`
	Tags         []string `yaml:"tags"`
	Resources    []string `yaml:"resources"`
	Agents       []string `yaml:"agents"`
	SubWorkflows []string `yaml:"subWorkflows"`
}

// Model converts the parsed front-matter into the persisted metadata shape.
func (m Metadata) Model() models.WorkflowMetadata {
	return models.WorkflowMetadata{
		Tags:         m.Tags,
		Resources:    m.Resources,
		Agents:       m.Agents,
		SubWorkflows: m.SubWorkflows,
	}
}

// Result is the outcome of validating an uploaded workflow definition.
// Callers branch on Valid; Validate never panics and has no side effects.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// frontMatterDelimiter separates YAML front matter from the document body.
const frontMatterDelimiter = "---"

// SplitFrontMatter separates the YAML front matter from the body. The second
// return value is the body; ok is false when no front matter block exists.
func SplitFrontMatter(content string) (front, body string, ok bool) {
	trimmed := strings.TrimLeft(content, "\r\n \t")
	if !strings.HasPrefix(trimmed, frontMatterDelimiter+"\n") && trimmed != frontMatterDelimiter {
		return "", content, false
	}
	rest := strings.TrimPrefix(trimmed, frontMatterDelimiter+"\n")
	idx := strings.Index(rest, "\n"+frontMatterDelimiter)
	if idx < 0 {
		return "", content, false
	}
	front = rest[:idx]
	body = rest[idx+len("\n"+frontMatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")
	return front, body, true
}

// Validate parses the front matter of raw uploaded content and checks the
// metadata contract: name is required, everything else optional.
func Validate(content string) Result {
	res := Result{}

	front, _, ok := SplitFrontMatter(content)
	if !ok {
		res.Warnings = append(res.Warnings, "no front matter block found")
		res.Errors = append(res.Errors, "Missing required workflow name")
		return res
	}

	if err := yaml.Unmarshal([]byte(front), &res.Metadata); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("malformed front matter: %v", err))
		return res
	}

	res.Metadata.Name = strings.TrimSpace(res.Metadata.Name)
	if res.Metadata.Name == "" {
		res.Errors = append(res.Errors, "Missing required workflow name")
		return res
	}

	if res.Metadata.Description == "" {
		res.Warnings = append(res.Warnings, "missing description")
	}
	if res.Metadata.Version == "" {
		res.Warnings = append(res.Warnings, "missing version")
	}
	if res.Metadata.Author == "" {
		res.Warnings = append(res.Warnings, "missing author")
	}
	for _, r := range res.Metadata.Resources {
		if strings.Contains(r, "..") {
			res.Errors = append(res.Errors, fmt.Sprintf("resource path escapes bundle: %s", r))
		}
	}
	if len(res.Errors) > 0 {
		return res
	}

	res.Valid = true
	return res
}

package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `---
name: Code Review Pipeline
description: Reviews pull requests in stages.
version: 1.2.0
author: dev@auraforce.dev
tags: [review, ci]
agents: [reviewer, summarizer]
subWorkflows: [lint-pass]
resources: [prompts/review.md]
---
# Code Review Pipeline

Uses @agent/reviewer and @workflow/lint-pass.
`

func TestValidate(t *testing.T) {
	res := Validate(validDoc)
	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "Code Review Pipeline", res.Metadata.Name)
	assert.Equal(t, []string{"reviewer", "summarizer"}, res.Metadata.Agents)
	assert.Equal(t, []string{"lint-pass"}, res.Metadata.SubWorkflows)
	assert.Equal(t, []string{"review", "ci"}, res.Metadata.Tags)
}

func TestValidateMissingName(t *testing.T) {
	res := Validate("---\ndescription: nameless\n---\nbody")
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "Missing required workflow name")
}

func TestValidateNoFrontMatter(t *testing.T) {
	res := Validate("# Just a readme\n\nNo metadata here.")
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "Missing required workflow name")
	assert.Contains(t, res.Warnings, "no front matter block found")
}

func TestValidateMalformedFrontMatter(t *testing.T) {
	res := Validate("---\nname: [unclosed\n---\nbody")
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "malformed front matter")
}

func TestValidateWarnings(t *testing.T) {
	res := Validate("---\nname: Bare Minimum\n---\nbody")
	assert.True(t, res.Valid)
	assert.Len(t, res.Warnings, 3)
}

func TestValidateEscapingResourcePath(t *testing.T) {
	res := Validate("---\nname: Sneaky\nresources: ['../../etc/passwd']\n---\n")
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "escapes bundle")
}

func TestSplitFrontMatter(t *testing.T) {
	front, body, ok := SplitFrontMatter("---\na: 1\n---\nrest of doc")
	require.True(t, ok)
	assert.Equal(t, "a: 1", front)
	assert.Equal(t, "rest of doc", body)

	_, body, ok = SplitFrontMatter("no delimiters at all")
	assert.False(t, ok)
	assert.Equal(t, "no delimiters at all", body)
}

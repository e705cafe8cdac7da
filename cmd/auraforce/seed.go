package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"auraforce/backend/internal/config"
	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/metrics"
	"auraforce/backend/internal/repository"
	"auraforce/backend/internal/services"
	"auraforce/backend/pkg/models"
)

// devSessionToken is the fixed session used for local development logins.
const devSessionToken = "dev-session-token"

var seedDocuments = []struct {
	file    string
	content string
}{
	{"summarizer.md", `---
name: Summarizer
description: Summarizes long conversations into concise notes
version: 1.0.0
author: seed-script
tags: [text, summaries]
---
Condense the conversation with @agent/condenser and keep decisions intact.
`},
	{"fact-checker.md", `---
name: Fact Checker
description: Verifies claims against stored references
version: 1.0.0
author: seed-script
tags: [text, verification]
---
Cross-check each claim, then summarize findings via @workflow/Summarizer.
`},
	{"code-reviewer.md", `---
name: Code Reviewer
description: Analyzes code snippets for style and bugs
version: 0.2.0
author: seed-script
tags: [code]
---
Run @agent/linter first, then a style pass.
`},
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo user, session and workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}
}

func runSeed(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.IsDev())
	defer logger.Sync()

	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := repository.NewPostgresWorkflowStore(pool)

	user := &models.User{
		ID:        uuid.New().String(),
		Email:     "demo@auraforce.local",
		Name:      "Demo User",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrAlreadyExists) {
			return err
		}
		existing, err := store.GetUserByEmail(ctx, user.Email)
		if err != nil {
			return err
		}
		user = existing
		logger.Info("demo user already exists", "email", user.Email)
	} else {
		logger.Info("created demo user", "email", user.Email, "id", user.ID)
	}

	if err := store.CreateSession(ctx, &models.Session{
		Token:     devSessionToken,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}); err != nil {
		return err
	}
	logger.Info("created dev session", "cookie", devSessionToken)

	deployer := deploy.NewDeployer(cfg.WorkflowsDir(), logger)
	svc := services.NewWorkflowService(store, deployer, metrics.NewNop(), logger,
		cfg.Storage.WorkspaceRoot, cfg.Search.CacheSize, cfg.Search.CacheTTL)

	files := make([]services.UploadFile, 0, len(seedDocuments))
	for _, doc := range seedDocuments {
		files = append(files, services.UploadFile{Name: doc.file, Content: doc.content})
	}
	for _, res := range svc.UploadWorkflows(ctx, user.ID, files) {
		if res.Success {
			logger.Info("seeded workflow", "file", res.FileName, "id", res.WorkflowID)
		} else {
			logger.Warn("skipping workflow", "file", res.FileName, "reason", res.Error)
		}
	}
	logger.Info("seeding complete")
	return nil
}

// Package commands implements docqactl, the operator CLI for the document
// store: schema migration, status inspection, manual transitions and facet
// counts.
package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/config"
	mysqlClient "gopherai-docqa/internal/platform/mysql"
	redisClient "gopherai-docqa/internal/platform/redis"
)

// Env is what a command runs against.
type Env struct {
	DB       *gorm.DB
	Services *bootstrap.Services
	Close    func()
}

// Opener connects an Env. Tests swap it for an in-memory database.
type Opener func(ctx context.Context) (*Env, error)

var ownerID string

// NewRootCmd builds the command tree around open.
func NewRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "docqactl",
		Short:         "Operate the document Q&A store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&ownerID, "owner", "", "Owner ID the command acts for")

	root.AddCommand(
		NewMigrateCmd(open),
		NewListCmd(open),
		NewStatusCmd(open),
		NewTransitionCmd(open),
		NewFacetsCmd(open),
	)
	return root
}

func Execute() error {
	return NewRootCmd(OpenFromConfig).Execute()
}

// OpenFromConfig connects MySQL and, when reachable, Redis so that status
// changes also drop cached query results.
func OpenFromConfig(ctx context.Context) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), false)
	if err != nil {
		return nil, err
	}
	embedder, err := bootstrap.NewEmbedder(cfg.Embedding)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("create embedder failed: %w", err)
	}

	collaborators := bootstrap.Collaborators{Embedder: embedder, Extractor: bootstrap.PDFExtractor{}}
	closers := []func(){func() { closeDB(db) }}
	if rdb, err := redisClient.New(ctx, cfg.Redis); err != nil {
		log.Printf("docqactl: redis unavailable, cached results are not invalidated: %v", err)
	} else {
		collaborators.Cache = cache.NewResultCache(rdb, cfg.ResultTTL())
		closers = append(closers, func() { _ = rdb.Close() })
	}

	return &Env{
		DB:       db,
		Services: bootstrap.NewServices(cfg, db, collaborators),
		Close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func requireOwner() error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}
	return nil
}

// withEnv opens an Env for the duration of run.
func withEnv(cmd *cobra.Command, open Opener, run func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := open(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	return run(ctx, env)
}

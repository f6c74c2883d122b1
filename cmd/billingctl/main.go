package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/billing/cmd/billingctl/cli"
	"github.com/odyssey-erp/billing/internal/app"
	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/platform/migrate"
	"github.com/odyssey-erp/billing/internal/rbac"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(open, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "billingctl: %v\n", err)
		os.Exit(1)
	}
}

// open wires the production collaborators. pgxpool and asynq connect on
// first use, so commands only reach the services they touch.
func open(ctx context.Context) (*cli.Env, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	queue, err := cli.NewAsynqJobs(cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	release := func() {
		if err := queue.Close(); err != nil {
			logger.Warn("close job queue", slog.Any("error", err))
		}
		pool.Close()
	}

	repo := billing.NewRepository(pool)
	billingCfg := billing.Config{InvoicePrefix: cfg.InvoicePrefix}
	return &cli.Env{
		Migrator:   migrate.New(pool, logger),
		Reconciler: billing.NewPaymentService(repo, billingCfg),
		Overdue:    billing.NewInvoiceService(repo, billingCfg),
		Jobs:       queue,
		Tokens:     rbac.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
	}, release, nil
}

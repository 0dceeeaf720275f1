package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgercore/internal/account"
	"github.com/smallbiznis/ledgercore/internal/autojournal"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/config"
	"github.com/smallbiznis/ledgercore/internal/journal"
	"github.com/smallbiznis/ledgercore/internal/ledger"
	"github.com/smallbiznis/ledgercore/internal/lock"
	"github.com/smallbiznis/ledgercore/internal/migration"
	"github.com/smallbiznis/ledgercore/internal/observability"
	"github.com/smallbiznis/ledgercore/internal/reconciliation"
	"github.com/smallbiznis/ledgercore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const oneShotTimeout = 10 * time.Minute

// infrastructure is shared by every command that touches the database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		clock.Module,
	)
}

func domains() fx.Option {
	return fx.Options(
		lock.Module,
		account.Module,
		journal.Module,
		ledger.Module,
		autojournal.Module,
		reconciliation.Module,
	)
}

func newSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

// runOnce starts the graph, calls fn and stops the graph again.
func runOnce(ctx context.Context, fn func(context.Context) error, opts ...fx.Option) error {
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithTimeout(ctx, oneShotTimeout)
	runErr := fn(runCtx)
	cancelRun()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func tenantFlag(raw int64) (snowflake.ID, error) {
	if raw <= 0 {
		return 0, errors.New("--tenant must be a positive tenant id")
	}
	return snowflake.ID(raw), nil
}

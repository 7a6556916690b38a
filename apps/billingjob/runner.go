package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/adbilling/internal/actorcontext"
	"github.com/smallbiznis/adbilling/internal/audit"
	"github.com/smallbiznis/adbilling/internal/catalog"
	"github.com/smallbiznis/adbilling/internal/clock"
	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/smallbiznis/adbilling/internal/earning"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	"github.com/smallbiznis/adbilling/internal/invoice"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	"github.com/smallbiznis/adbilling/internal/lock"
	"github.com/smallbiznis/adbilling/internal/migration"
	"github.com/smallbiznis/adbilling/internal/observability"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	"github.com/smallbiznis/adbilling/internal/observability/push"
	"github.com/smallbiznis/adbilling/internal/payment"
	"github.com/smallbiznis/adbilling/internal/reporting"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/smallbiznis/adbilling/internal/systemconfig"
	"github.com/smallbiznis/adbilling/internal/usage"
	"github.com/smallbiznis/adbilling/pkg/db"
	"github.com/smallbiznis/adbilling/pkg/telemetry/correlation"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockPrefix = "adbilling:job:"

type deps struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Locker     *lock.Locker           `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
	InvoiceSvc invoicedomain.Service
	EarningSvc earningdomain.Service
	ReportSvc  reportingdomain.Service
}

func modules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,

		audit.Module,
		catalog.Module,
		systemconfig.Module,
		usage.Module,
		payment.Module,
		invoice.Module,
		earning.Module,
		reporting.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

// runJob boots the service graph, runs fn as the system actor under the job
// lease and prints its result as JSON.
func runJob(cmd *cobra.Command, job string, fn func(context.Context, deps) (any, error)) error {
	var d deps
	app := fx.New(fx.NopLogger, modules(), fx.Invoke(func(in deps) { d = in }))
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := d.Log.Named("billingjob").With(zap.String("job", job), zap.String("run_id", runID))
	ctx = actorcontext.WithActor(ctx, actorcontext.System())
	ttl := time.Duration(d.Cfg.JobLockTTLSecs) * time.Second

	var out any
	err := d.Locker.Run(ctx, lockPrefix+job, ttl, func(ctx context.Context) error {
		var runErr error
		out, runErr = fn(ctx, d)
		return runErr
	})
	if errors.Is(err, lock.ErrHeld) {
		err = obsmetrics.ErrJobLockHeld.Wrap(err)
		if d.JobMetrics != nil {
			d.JobMetrics.IncError(job, err)
		}
	}
	pushMetrics(ctx, d, log)

	if err != nil {
		log.Error("job failed", zap.String("reason", obsmetrics.ClassifyJobReason(err)), zap.Error(err))
		return err
	}
	log.Info("job finished")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func pushMetrics(ctx context.Context, d deps, log *zap.Logger) {
	pusher := push.New(d.Cfg, log)
	if pusher == nil {
		return
	}
	if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}

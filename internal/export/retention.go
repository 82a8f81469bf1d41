package export

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// DefaultSweepExpr runs the retention sweep every 15 minutes, often enough
// that a 24h TTL (BundleTTL) never drifts far past its expiry.
const DefaultSweepExpr = "*/15 * * * *"

// RetentionSweeper periodically clears export bundles past
// ExpiresAtUnixMillis, evaluating Expr with gronx the way a cron daemon
// would rather than hand-rolling interval arithmetic (go.mod's adhocore/gronx
// dependency, otherwise unused in this module).
type RetentionSweeper struct {
	Service *Service
	Expr    string
	Log     *slog.Logger

	gron gronx.Gronx
}

// Run blocks, checking once a minute whether Expr is due and sweeping
// expired bundles when it is, until ctx is cancelled.
func (r *RetentionSweeper) Run(ctx context.Context) {
	if r.Expr == "" {
		r.Expr = DefaultSweepExpr
	}
	if r.Log == nil {
		r.Log = slog.Default()
	}
	r.gron = gronx.New()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := r.gron.IsDue(r.Expr, now)
			if err != nil {
				r.Log.Error("export retention: invalid sweep expression", "expr", r.Expr, "error", err)
				return
			}
			if !due {
				continue
			}
			if err := r.sweepOnce(ctx, now); err != nil {
				r.Log.Error("export retention: sweep failed", "error", err)
			}
		}
	}
}

func (r *RetentionSweeper) sweepOnce(ctx context.Context, now time.Time) error {
	userIDs, err := r.Service.Store.ListExportUserIDs(ctx)
	if err != nil {
		return err
	}

	nowMillis := now.UnixMilli()
	for _, userID := range userIDs {
		bundle, err := r.Service.Store.GetExportStatus(ctx, userID)
		if err != nil {
			if err == kvstore.ErrNotFound {
				continue
			}
			return err
		}
		if bundle.Status != kvstore.ExportReady {
			continue
		}
		if bundle.ExpiresAtUnixMillis == 0 || bundle.ExpiresAtUnixMillis > nowMillis {
			continue
		}
		if err := r.Service.Clear(ctx, userID); err != nil {
			return err
		}
		r.Log.Info("export retention: cleared expired bundle", "user_id", userID)
	}
	return nil
}

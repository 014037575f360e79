package scheduler

import (
	"context"
	"log/slog"
	"time"

	"fleetcare/internal/types"
)

// raiseNotifications emits the overdue and upcoming events for the run.
// Completed events come only from NotifyCompleted. Listing and delivery
// failures are logged and counted; they never fail the run or touch request
// state.
func (e *Engine) raiseNotifications(ctx context.Context, logger *slog.Logger, now time.Time, runID string, t *tally) {
	if e.deps.Notifier == nil {
		return
	}
	horizon := now.AddDate(0, 0, e.cfg.UpcomingWindowDays)

	overdue := e.listForNotify(ctx, logger, types.NotifyOverdue, types.RequestFilter{
		Statuses:        types.OpenRequestStatuses,
		ScheduledBefore: &now,
	})
	if len(overdue) > 0 {
		e.notify(ctx, logger, types.NotifyOverdue, types.NotificationEvent{
			RequestIDs: requestIDs(overdue),
			RaisedAt:   now,
			RunID:      runID,
		}, t)
	}

	upcoming := e.listForNotify(ctx, logger, types.NotifyUpcoming, types.RequestFilter{
		Statuses:       types.OpenRequestStatuses,
		ScheduledFrom:  &now,
		ScheduledUntil: &horizon,
	})
	if len(upcoming) > 0 {
		e.notify(ctx, logger, types.NotifyUpcoming, types.NotificationEvent{
			RequestIDs: requestIDs(upcoming),
			WindowDays: e.cfg.UpcomingWindowDays,
			RaisedAt:   now,
			RunID:      runID,
		}, t)
	}
}

func (e *Engine) listForNotify(ctx context.Context, logger *slog.Logger, kind types.NotificationKind, f types.RequestFilter) []types.ServiceRequest {
	reqs, err := callWithTimeout(ctx, e.cfg.StoreTimeout, func(c context.Context) ([]types.ServiceRequest, error) {
		return e.deps.Requests.ListRequests(c, f)
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to list requests for notification", "kind", string(kind), "error", err)
		return nil
	}
	return reqs
}

// notify delivers one event under NotifyTimeout. t may be nil.
func (e *Engine) notify(ctx context.Context, logger *slog.Logger, kind types.NotificationKind, event types.NotificationEvent, t *tally) {
	if e.deps.Notifier == nil {
		return
	}
	event.Kind = kind
	nctx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
	defer cancel()

	if err := e.deps.Notifier.Notify(nctx, kind, event); err != nil {
		logger.WarnContext(ctx, "notification failed",
			"kind", string(kind),
			"requests", len(event.RequestIDs),
			"error", err,
		)
		if t != nil {
			t.add(func(r *RunReport) { r.NotificationsFailed++ })
		}
		return
	}
	logger.DebugContext(ctx, "notification sent", "kind", string(kind), "requests", len(event.RequestIDs))
	if t != nil {
		t.add(func(r *RunReport) { r.NotificationsSent++ })
	}
}

func requestIDs(reqs []types.ServiceRequest) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

package engine

import (
	"context"
	"errors"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/security/access"
)

// authorize checks perm. When action is set, a denial is audited against
// target.
func (e *Engine) authorize(ctx context.Context, caller access.Identity, perm access.Permission, op string, action audit.Action, target string) error {
	err := e.access.Require(caller, perm, op)
	if err == nil {
		return nil
	}

	e.logger.Warn("operation denied",
		"op", op,
		"actor_id", caller.String(),
		"permission", string(perm),
	)
	if action != "" {
		e.recordAudit(ctx, audit.Event{
			Action:   action,
			ActorID:  caller.String(),
			TargetID: target,
			Outcome:  audit.OutcomeDenied,
			Detail:   map[string]string{"permission": string(perm)},
		})
	}
	return err
}

// recordAudit writes an event. A sink failure is logged and otherwise
// ignored.
func (e *Engine) recordAudit(ctx context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock().UTC()
	}
	if err := e.audit.LogEvent(ctx, event); err != nil {
		e.logger.Warn("failed to write audit event",
			"action", string(event.Action),
			"target_id", event.TargetID,
			"error", err,
		)
	}
}

// tag attaches op and id to errors that do not already carry a kind.
func tag(op, id string, err error) error {
	var tagged *archive.Error
	if errors.As(err, &tagged) {
		return err
	}
	return archive.NewError(archive.KindOf(err), op, id, err)
}

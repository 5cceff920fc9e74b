package engine

import (
	"context"
	"strings"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/retention"
	"archival-hq/keeper/pkg/archive/stats"
	"archival-hq/keeper/pkg/security/access"
	"archival-hq/keeper/pkg/telemetry/tracing"
)

// ListRetentionPolicies returns the effective policies sorted by entity
// type.
func (e *Engine) ListRetentionPolicies(ctx context.Context, req ListRetentionPoliciesRequest) ([]archive.RetentionPolicy, error) {
	if err := e.authorize(ctx, req.Caller, access.PermRetentionRead, "engine.list_policies", "", ""); err != nil {
		return nil, err
	}
	return e.policies.List(), nil
}

// EnforceRetention runs a retention sweep on behalf of the caller. Dry runs
// report what would be deleted without writing anything.
func (e *Engine) EnforceRetention(ctx context.Context, req EnforceRetentionRequest) (res *retention.EnforceResult, err error) {
	const op = "engine.enforce_retention"

	ctx, span := e.startSpan(ctx, "retention.enforce", req.Caller, tracing.EntityType(req.EntityType), tracing.DryRun(req.DryRun))
	defer func() { endSpan(span, err) }()

	if err := e.authorize(ctx, req.Caller, access.PermRetentionEnforce, op, audit.ActionDelete, ""); err != nil {
		return nil, err
	}
	res, err = e.enforcer.Enforce(ctx, retention.EnforceRequest{
		EntityType: req.EntityType,
		DryRun:     req.DryRun,
		Actor:      req.Caller.ID,
	})
	if res != nil {
		span.SetAttributes(tracing.Deleted(res.Deleted), tracing.Blocked(res.LegalHoldsBlocking))
	}
	return res, err
}

// Metrics computes storage, archival and retention statistics. Values are
// recomputed on every call.
func (e *Engine) Metrics(ctx context.Context, req MetricsRequest) (*stats.Metrics, error) {
	const op = "engine.metrics"

	if err := e.authorize(ctx, req.Caller, access.PermMetricsRead, op, "", ""); err != nil {
		return nil, err
	}
	m, err := e.stats.Metrics(ctx)
	if err != nil {
		return nil, tag(op, "", err)
	}
	return m, nil
}

// StorageBreakdown reports storage use per entity type, largest first.
func (e *Engine) StorageBreakdown(ctx context.Context, req StorageBreakdownRequest) ([]stats.EntityStorage, error) {
	const op = "engine.storage_breakdown"

	if err := e.authorize(ctx, req.Caller, access.PermMetricsRead, op, "", ""); err != nil {
		return nil, err
	}
	breakdown, err := e.stats.StorageBreakdown(ctx)
	if err != nil {
		return nil, tag(op, "", err)
	}
	return breakdown, nil
}

// SetLegalHold places or releases a legal hold. Placing records the caller
// as holder together with the reason. Releasing a hold on an entity type
// whose policy is not overridable also requires the hold override
// permission. Releasing an archive that is not held is a no-op.
func (e *Engine) SetLegalHold(ctx context.Context, req SetLegalHoldRequest) (*archive.ArchiveRecord, error) {
	const op = "engine.legal_hold"

	reason := strings.TrimSpace(req.Reason)
	if req.ArchiveID == "" {
		return nil, archive.Validationf(op, "archive id is required")
	}
	if req.Hold && reason == "" {
		return nil, archive.Validationf(op, "a reason is required to place a legal hold")
	}
	if err := e.authorize(ctx, req.Caller, access.PermHoldManage, op, audit.ActionLegalHold, req.ArchiveID); err != nil {
		return nil, err
	}

	current, err := e.index.Get(ctx, req.ArchiveID)
	if err != nil {
		return nil, tag(op, req.ArchiveID, err)
	}

	detail := map[string]string{"entity_type": current.EntityType}
	if req.Hold {
		detail["hold"] = "placed"
		detail["reason"] = reason
	} else {
		if !current.LegalHold {
			return current, nil
		}
		if !e.policies.Policy(current.EntityType).LegalHoldOverridable {
			if err := e.authorize(ctx, req.Caller, access.PermHoldOverride, op, audit.ActionLegalHold, req.ArchiveID); err != nil {
				return nil, err
			}
		}
		detail["hold"] = "released"
		detail["previous_holder"] = current.LegalHoldBy
		detail["previous_reason"] = current.LegalHoldReason
		if reason != "" {
			detail["reason"] = reason
		}
	}

	updated, err := e.index.Update(ctx, req.ArchiveID, archive.Mutation{
		LegalHold: &archive.HoldChange{
			Active: req.Hold,
			By:     req.Caller.ID,
			Reason: reason,
			At:     e.clock().UTC(),
		},
		IfStatus: archive.StatusComplete,
	})
	if err != nil {
		err = tag(op, req.ArchiveID, err)
		e.recordAudit(ctx, audit.Event{
			Action:   audit.ActionLegalHold,
			ActorID:  req.Caller.ID,
			TargetID: req.ArchiveID,
			Outcome:  audit.OutcomeFailure,
			Detail:   map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	e.recordAudit(ctx, audit.Event{
		Action:   audit.ActionLegalHold,
		ActorID:  req.Caller.ID,
		TargetID: req.ArchiveID,
		Outcome:  audit.OutcomeSuccess,
		Detail:   detail,
	})
	e.logger.Info("legal hold changed",
		"archive_id", req.ArchiveID,
		"hold", detail["hold"],
		"actor_id", req.Caller.ID,
	)
	return updated, nil
}

// OverrideRetention sets a new retention deadline, or removes it, for one
// archive. A legal hold still blocks deletion after an override.
func (e *Engine) OverrideRetention(ctx context.Context, req OverrideRetentionRequest) (*archive.ArchiveRecord, error) {
	const op = "engine.override_retention"

	if req.ArchiveID == "" {
		return nil, archive.Validationf(op, "archive id is required")
	}
	if (req.RetentionUntil == nil) == !req.Indefinite {
		return nil, archive.Validationf(op, "exactly one of retention_until and indefinite must be set")
	}
	if err := e.authorize(ctx, req.Caller, access.PermRetentionOverride, op, audit.ActionRetentionOverride, req.ArchiveID); err != nil {
		return nil, err
	}

	current, err := e.index.Get(ctx, req.ArchiveID)
	if err != nil {
		return nil, tag(op, req.ArchiveID, err)
	}

	m := archive.Mutation{IfStatus: archive.StatusComplete}
	detail := map[string]string{
		"entity_type": current.EntityType,
		"previous":    formatDeadline(current.RetentionUntil),
	}
	if req.Indefinite {
		m.ClearRetention = true
		detail["retention_until"] = formatDeadline(nil)
	} else {
		until := req.RetentionUntil.UTC()
		m.RetentionUntil = &until
		detail["retention_until"] = formatDeadline(&until)
	}

	updated, err := e.index.Update(ctx, req.ArchiveID, m)
	if err != nil {
		err = tag(op, req.ArchiveID, err)
		e.recordAudit(ctx, audit.Event{
			Action:   audit.ActionRetentionOverride,
			ActorID:  req.Caller.ID,
			TargetID: req.ArchiveID,
			Outcome:  audit.OutcomeFailure,
			Detail:   map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	e.recordAudit(ctx, audit.Event{
		Action:   audit.ActionRetentionOverride,
		ActorID:  req.Caller.ID,
		TargetID: req.ArchiveID,
		Outcome:  audit.OutcomeSuccess,
		Detail:   detail,
	})
	e.logger.Info("retention overridden",
		"archive_id", req.ArchiveID,
		"retention_until", detail["retention_until"],
		"actor_id", req.Caller.ID,
	)
	return updated, nil
}

func formatDeadline(t *time.Time) string {
	if t == nil {
		return "indefinite"
	}
	return t.UTC().Format(time.RFC3339)
}

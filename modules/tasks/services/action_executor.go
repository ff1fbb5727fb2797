package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/identity"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/pkg/composables"
	"github.com/iota-uz/taskflow/pkg/eventbus"
	"github.com/iota-uz/taskflow/pkg/metrics"
)

var tracer = otel.Tracer("taskflow-permissions")

// Command is one permission-changing operation, already normalized to UIDs.
type Command struct {
	Verb         action.Verb
	ActorUID     uuid.UUID
	TargetUID    uuid.UUID
	ResourceType resource.Type
	ResourceUID  uuid.UUID
	Level        access.Level
	Metadata     json.RawMessage
}

// ActionExecutor is the transactional entry point for every grant, revoke
// and membership cascade: it locks the owning resource, authorizes the
// actor, appends the immutable audit record, computes the cascade and
// applies it atomically. Either everything commits or nothing does.
type ActionExecutor struct {
	identity   identity.Resolver
	store      resource.Store
	areas      area.Repository
	perms      permission.Repository
	actions    action.Repository
	calculator *CascadeCalculator
	publisher  eventbus.EventBus
}

func NewActionExecutor(
	id identity.Resolver,
	store resource.Store,
	areas area.Repository,
	perms permission.Repository,
	actions action.Repository,
	calculator *CascadeCalculator,
	publisher eventbus.EventBus,
) *ActionExecutor {
	return &ActionExecutor{
		identity:   id,
		store:      store,
		areas:      areas,
		perms:      perms,
		actions:    actions,
		calculator: calculator,
		publisher:  publisher,
	}
}

// ExecuteForUserIDs is the wire-level adapter: route handlers deal in
// numeric user ids, which are resolved to UIDs before anything else runs.
func (e *ActionExecutor) ExecuteForUserIDs(ctx context.Context, verb action.Verb, actorID, targetID uint, t resource.Type, uid uuid.UUID, lvl access.Level) (uuid.UUID, error) {
	actorUID, err := e.identity.ResolveUID(ctx, actorID)
	if err != nil {
		return uuid.Nil, ErrValidation.WithDetails("unknown actor user id %d", actorID)
	}
	targetUID, err := e.identity.ResolveUID(ctx, targetID)
	if err != nil {
		return uuid.Nil, ErrValidation.WithDetails("unknown target user id %d", targetID)
	}
	return e.Execute(ctx, Command{
		Verb:         verb,
		ActorUID:     actorUID,
		TargetUID:    targetUID,
		ResourceType: t,
		ResourceUID:  uid,
		Level:        lvl,
	})
}

func (e *ActionExecutor) Execute(ctx context.Context, cmd Command) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "ActionExecutor.Execute", trace.WithAttributes(
		attribute.String("action.verb", string(cmd.Verb)),
		attribute.String("resource.type", string(cmd.ResourceType)),
	))
	defer span.End()

	if err := e.validate(cmd); err != nil {
		return uuid.Nil, err
	}

	var act *action.Action
	var diff *Diff
	err := composables.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		act, diff, err = e.executeInTx(txCtx, cmd)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.ActionsExecuted.WithLabelValues(string(act.Verb)).Inc()
	metrics.CascadeRows.WithLabelValues(string(act.Verb)).Observe(float64(diff.Size()))
	if logger, ok := composables.TryUseLogger(ctx); ok {
		logger.WithFields(logrus.Fields{
			"action_id": act.ID,
			"verb":      act.Verb,
			"resource":  resource.Ref{Type: act.ResourceType, UID: act.ResourceUID}.String(),
			"target":    act.TargetUID,
			"upserts":   len(diff.Upserts),
			"deletes":   len(diff.Deletes),
		}).Info("permission action executed")
	}

	// Notification is informational only; subscriber panics are recovered
	// inside the bus and cannot undo the committed cascade.
	e.publisher.Publish(action.NewExecutedEvent(act, len(diff.Upserts), len(diff.Deletes)))

	return act.ID, nil
}

func (e *ActionExecutor) validate(cmd Command) error {
	if _, err := action.ParseVerb(string(cmd.Verb)); err != nil {
		return ErrValidation.WithDetails("invalid verb %q", cmd.Verb)
	}
	if cmd.ActorUID == uuid.Nil {
		return ErrValidation.WithDetails("actor is required")
	}
	if cmd.TargetUID == uuid.Nil {
		return ErrValidation.WithDetails("target user_id is required")
	}
	if cmd.ResourceUID == uuid.Nil {
		return ErrValidation.WithDetails("resource uid is required")
	}
	if _, err := resource.ParseType(string(cmd.ResourceType)); err != nil {
		return ErrValidation.WithDetails("invalid resource type %q", cmd.ResourceType)
	}
	switch cmd.Verb {
	case action.VerbShareGrant, action.VerbAreaMemberAdd:
		if cmd.Level == access.LevelNone {
			return ErrValidation.WithDetails("access level is required for %s", cmd.Verb)
		}
	}
	return nil
}

func (e *ActionExecutor) executeInTx(ctx context.Context, cmd Command) (*action.Action, *Diff, error) {
	// Lock the owning row first: concurrent grants, revokes and ownership
	// transfers on the same resource serialize here.
	owner, err := e.store.FindOwnerForUpdate(ctx, cmd.ResourceType, cmd.ResourceUID)
	if err != nil {
		return nil, nil, lookupFailed("lock resource", err)
	}
	if owner == nil {
		return nil, nil, ErrNotFound.WithDetails("%s %s", cmd.ResourceType, cmd.ResourceUID)
	}

	if err := e.authorize(ctx, cmd, owner); err != nil {
		return nil, nil, err
	}

	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, nil, err
	}

	act := &action.Action{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ActorUID:     cmd.ActorUID,
		Verb:         cmd.Verb,
		ResourceType: cmd.ResourceType,
		ResourceUID:  cmd.ResourceUID,
		TargetUID:    cmd.TargetUID,
		Level:        cmd.Level,
		Metadata:     cmd.Metadata,
		CreatedAt:    time.Now(),
	}
	if params, ok := composables.UseParams(ctx); ok {
		act.IP = params.IP
		act.UserAgent = params.UserAgent
	}
	if err := e.actions.Create(ctx, act); err != nil {
		return nil, nil, err
	}

	diff, err := e.calculator.Calculate(ctx, act)
	if err != nil {
		return nil, nil, err
	}
	// Provenance: every row this invocation writes references the action.
	for _, p := range diff.Upserts {
		p.SourceActionID = act.ID
	}

	if len(diff.Upserts) > 0 {
		if err := e.perms.UpsertMany(ctx, diff.Upserts); err != nil {
			return nil, nil, err
		}
	}
	if len(diff.Deletes) > 0 {
		if err := e.perms.DeleteMany(ctx, diff.Deletes); err != nil {
			return nil, nil, err
		}
	}
	return act, diff, nil
}

// authorize decides before any mutation: super-admins, the resource owner,
// and (for areas) department admins may execute actions.
func (e *ActionExecutor) authorize(ctx context.Context, cmd Command, owner *resource.Owner) error {
	super, err := e.identity.IsSuperAdmin(ctx, cmd.ActorUID)
	if err != nil {
		return lookupFailed("super-admin check", err)
	}
	if super {
		return nil
	}
	// Ownership transfer reassigns the area owner; only super-admins may do
	// that.
	if cmd.Verb == action.VerbAreaOwnershipTransfer {
		return ErrForbidden.WithDetails("ownership transfer requires a super-admin")
	}
	if owner.OwnerUID == cmd.ActorUID {
		return nil
	}
	if cmd.ResourceType == resource.TypeArea {
		membership, err := e.areas.FindMembership(ctx, cmd.ResourceUID, cmd.ActorUID)
		if err != nil {
			return lookupFailed("find membership", err)
		}
		if membership != nil && membership.Role == area.RoleAdmin {
			return nil
		}
	}
	return ErrForbidden.WithDetails("actor may not %s on %s", cmd.Verb, cmd.ResourceType)
}

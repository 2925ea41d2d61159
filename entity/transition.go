package entity

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
)

// Action is a step in the approval workflow.
type Action string

const (
	ActionSubmit      Action = "submitForApproval"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionArchive     Action = "archive"
	ActionSuperDelete Action = "superDelete"
)

// Actions lists every action, in workflow order.
var Actions = []Action{ActionSubmit, ActionApprove, ActionReject, ActionArchive, ActionSuperDelete}

// ParseAction returns the action named by s.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// transitions maps each action and starting status to the resulting status.
// Pairs not listed are invalid. A super delete is allowed from any status
// and has no resulting status since nothing is left.
var transitions = map[Action]map[Status]Status{
	ActionSubmit:  {StatusDraft: StatusPending},
	ActionApprove: {StatusPending: StatusPublished},
	ActionReject:  {StatusPending: StatusDraft},
	ActionArchive: {
		StatusDraft:     StatusArchived,
		StatusPending:   StatusArchived,
		StatusPublished: StatusArchived,
	},
}

// Next returns the status action leads to from status from. The second
// result is false if the action is not allowed from that status.
func Next(action Action, from Status) (Status, bool) {
	if action == ActionSuperDelete {
		_, ok := ParseStatus(string(from))
		return StatusDeleted, ok
	}
	to, ok := transitions[action][from]
	return to, ok
}

// Transition applies an action to the current version of an entity. The
// action must be valid from the entity's status, and then the policy must
// allow it. feedback is required by a reject and ignored otherwise.
//
// Every transition other than a super delete writes a new snapshot and then
// moves the pointer. A super delete removes every object belonging to the
// entity and returns the last state with the status StatusDeleted.
func (s *Store) Transition(ctx context.Context, actor Principal, id string, action Action, feedback string) (*Entity, error) {
	current, err := s.Get(ctx, id, 0)
	if failure.NotFound.Has(err) && action == ActionSuperDelete {
		return s.purgeRemains(ctx, actor, id)
	}
	if err != nil {
		return nil, err
	}
	to, ok := Next(action, current.Status)
	if !ok {
		return nil, failure.InvalidTransition.New("cannot %s a %s entity", action, current.Status)
	}
	if !s.Policy.CanTransition(actor, action, current) {
		return nil, failure.Forbidden.New("%s may not %s %s", actor.UserID, action, id)
	}

	if action == ActionSuperDelete {
		if err := s.purge(ctx, current); err != nil {
			return nil, err
		}
		s.Log.Info("purged entity", zap.String("id", id), zap.String("user", actor.UserID))
		s.invalidate(ctx, current, nil)
		gone := current.copy()
		gone.Status = StatusDeleted
		return gone, nil
	}

	next := current.copy()
	switch action {
	case ActionSubmit:
		t, err := s.GetType(ctx, current.EntityTypeID)
		if err != nil {
			return nil, err
		}
		if missing := t.Missing(current.Data); len(missing) > 0 {
			return nil, failure.Validation.New("required fields are empty: %s", strings.Join(missing, ", "))
		}
		next.Feedback = ""
	case ActionApprove:
		next.Feedback = ""
	case ActionReject:
		feedback = strings.TrimSpace(feedback)
		if feedback == "" {
			return nil, failure.Validation.New("a rejection needs feedback")
		}
		next.Feedback = feedback
	}
	next.Status = to
	next.Version++
	next.UpdatedAt = s.now()
	next.UpdatedBy = actor.UserID
	if err := s.write(ctx, next); err != nil {
		return nil, err
	}
	s.Log.Info("transitioned entity", zap.String("id", id), zap.String("action", string(action)),
		zap.String("status", string(to)), zap.Int("version", next.Version), zap.String("user", actor.UserID))
	s.invalidate(ctx, current, next)
	return next.copy(), nil
}

// purgeRemains finishes a super delete which was interrupted part way.
// Only the stub is left to say where things were. The status the entity
// had is lost, so its type is marked stale in every known scope.
func (s *Store) purgeRemains(ctx context.Context, actor Principal, id string) (*Entity, error) {
	stub, err := s.stub(ctx, id)
	if err != nil {
		return nil, err
	}
	e := &Entity{
		ID:             id,
		EntityTypeID:   stub.EntityTypeID,
		OrganizationID: stub.OrganizationID,
		Status:         StatusDeleted,
		CreatedAt:      stub.CreatedAt,
		Data:           Data{},
	}
	if !s.Policy.CanTransition(actor, ActionSuperDelete, e) {
		return nil, failure.Forbidden.New("%s may not %s %s", actor.UserID, ActionSuperDelete, id)
	}
	if err := s.purge(ctx, e); err != nil {
		return nil, err
	}
	s.Log.Info("purged remains of entity", zap.String("id", id), zap.String("user", actor.UserID))
	if s.Invalidator != nil {
		if err := s.Invalidator.TypeChanged(ctx, stub.EntityTypeID); err != nil {
			s.reportInvalidation(err, id)
		}
	}
	return e, nil
}

// purge deletes the snapshots, then the pointer, then the stub. The order
// is the reverse of creation, so an interrupted purge can be retried: as
// long as the stub is there the remaining objects can be found.
func (s *Store) purge(ctx context.Context, e *Entity) error {
	versions, err := s.Versions(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, n := range versions {
		err := s.s.Delete(ctx, keys.Version(e.OrganizationID, e.EntityTypeID, e.ID, n))
		if err != nil {
			return failure.StorageUnavailable.Wrap(err)
		}
	}
	err = s.s.Delete(ctx, keys.Latest(e.OrganizationID, e.EntityTypeID, e.ID))
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	err = s.s.Delete(ctx, keys.Stub(e.ID))
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	s.stubs.Remove(e.ID)
	return nil
}

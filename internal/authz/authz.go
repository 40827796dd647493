// Package authz implements the Authorization helper from spec.md §4.B: pure
// predicates over the Store. Every mutation in the core funnels through
// these before persistence; the only place user-code -> user identity
// resolution happens is here.
package authz

import (
	"context"
	"errors"

	"github.com/tienphuckx/anony-box-backbone/internal/group"
	"github.com/tienphuckx/anony-box-backbone/internal/user"
)

// Sentinel errors for the authz package.
var (
	ErrUnauthorized = errors.New("user code does not resolve to a known user")
	ErrForbidden    = errors.New("user is not permitted to perform this action")
)

// Authorizer resolves user-codes and checks participation/ownership
// invariants on behalf of the gateway and REST handlers.
type Authorizer struct {
	users  user.Repository
	groups group.Repository
}

// New creates an Authorizer backed by the given repositories.
func New(users user.Repository, groups group.Repository) *Authorizer {
	return &Authorizer{users: users, groups: groups}
}

// ResolveUserCode turns a bearer user-code into a user, or ErrUnauthorized if
// it does not resolve to a known user. This is the sole place user-code ->
// user identity resolution happens.
func (a *Authorizer) ResolveUserCode(ctx context.Context, code string) (*user.User, error) {
	u, err := a.users.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

// RequireParticipant fails with ErrForbidden unless userID is a current
// participant of groupID.
func (a *Authorizer) RequireParticipant(ctx context.Context, userID, groupID int64) error {
	ok, err := a.groups.IsParticipant(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// RequireOwner fails with ErrForbidden unless userID owns groupID.
func (a *Authorizer) RequireOwner(ctx context.Context, userID, groupID int64) error {
	ok, err := a.groups.IsOwner(ctx, userID, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// RequireCapacity fails with group.ErrMaxMembers if the group has reached its
// configured maximum member count.
func (a *Authorizer) RequireCapacity(ctx context.Context, g *group.Group) error {
	if g.MaximumMembers == nil {
		return nil
	}
	count, err := a.groups.ParticipantCount(ctx, g.ID)
	if err != nil {
		return err
	}
	if count >= *g.MaximumMembers {
		return group.ErrMaxMembers
	}
	return nil
}

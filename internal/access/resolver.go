// Package access derives which live sessions a child may join from the
// entitlement records written by billing and enrollment, and resolves which
// dependent a guardian is acting for.
package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Resolver answers access questions. It holds no state of its own; every call
// reads the current entitlement records.
type Resolver struct {
	entitlements interfaces.EntitlementSource
	directory    interfaces.Directory
	sessions     interfaces.SessionStore
	logger       *zap.Logger
}

// AccessibleSession pairs a session with the dependents allowed to join it.
type AccessibleSession struct {
	Session  *types.Session     `json:"session"`
	Children []*types.Dependent `json:"children"`
}

// NewResolver creates a resolver over the given read-only sources.
func NewResolver(entitlements interfaces.EntitlementSource, directory interfaces.Directory, sessions interfaces.SessionStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		entitlements: entitlements,
		directory:    directory,
		sessions:     sessions,
		logger:       logger.Named("access"),
	}
}

// UnionGrants flattens every grant of every paid record into one sorted,
// de-duplicated id list. Unpaid records contribute nothing.
func UnionGrants(records []*types.Entitlement) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		if record == nil || !record.Paid {
			continue
		}
		for _, grant := range record.Grants() {
			for _, id := range grant.SessionIDs() {
				id = strings.TrimSpace(id)
				if id == "" {
					continue
				}
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the ids of every session the child may join.
func (r *Resolver) Resolve(ctx context.Context, childID string) ([]string, error) {
	records, err := r.entitlements.ListEntitlements(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for child %s: %w", childID, err)
	}
	return UnionGrants(records), nil
}

// Authorize fails with types.ErrAccessDenied unless the child's resolved set
// contains sessionID.
func (r *Resolver) Authorize(ctx context.Context, childID, sessionID string) error {
	ids, err := r.Resolve(ctx, childID)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(ids, sessionID)
	if i < len(ids) && ids[i] == sessionID {
		return nil
	}

	r.logger.Debug("child not entitled to session",
		zap.String("child_id", childID),
		zap.String("session_id", sessionID))
	return fmt.Errorf("child %s is not entitled to session %s: %w", childID, sessionID, types.ErrAccessDenied)
}

// Dependent picks the dependent a guardian acts as. With childID set it must
// be one of the guardian's own dependents; otherwise a single dependent is
// chosen automatically and several yield *types.AmbiguousDependent.
func (r *Resolver) Dependent(ctx context.Context, actor types.ActorContext, childID string) (*types.Dependent, error) {
	if actor.Role != types.RoleGuardian {
		return nil, fmt.Errorf("role %s cannot act as a dependent: %w", actor.Role, types.ErrAccessDenied)
	}

	dependents, err := r.directory.ListDependents(ctx, actor.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	if len(dependents) == 0 {
		return nil, types.ErrMissingDependentProfile
	}

	if childID != "" {
		for _, d := range dependents {
			if d.ID == childID {
				return d, nil
			}
		}
		return nil, fmt.Errorf("child %s does not belong to account %s: %w", childID, actor.AccountID, types.ErrAccessDenied)
	}

	if len(dependents) == 1 {
		return dependents[0], nil
	}
	return nil, &types.AmbiguousDependent{Dependents: dependents}
}

// AccessibleSessions lists, for a guardian, every session at least one of
// their dependents may join, newest scheduled first. Ended sessions and
// sessions of another organization are skipped.
func (r *Resolver) AccessibleSessions(ctx context.Context, actor types.ActorContext) ([]*AccessibleSession, error) {
	if actor.Role != types.RoleGuardian {
		return nil, fmt.Errorf("only guardians have dependent sessions: %w", types.ErrAccessDenied)
	}

	dependents, err := r.directory.ListDependents(ctx, actor.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}

	childrenBySession := make(map[string][]*types.Dependent)
	var ids []string
	for _, d := range dependents {
		granted, err := r.Resolve(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range granted {
			if _, ok := childrenBySession[id]; !ok {
				ids = append(ids, id)
			}
			childrenBySession[id] = append(childrenBySession[id], d)
		}
	}

	sessions, err := r.sessions.ListSessionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load accessible sessions: %w", err)
	}

	result := make([]*AccessibleSession, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == types.StatusEnded {
			continue
		}
		if actor.OrganizationID != "" && s.OrganizationID != "" && s.OrganizationID != actor.OrganizationID {
			continue
		}
		result = append(result, &AccessibleSession{
			Session:  s,
			Children: childrenBySession[s.ID],
		})
	}
	return result, nil
}

// AuthorizeGuardian succeeds when at least one of the guardian's dependents
// may join sessionID.
func (r *Resolver) AuthorizeGuardian(ctx context.Context, actor types.ActorContext, sessionID string) error {
	if actor.Role != types.RoleGuardian {
		return fmt.Errorf("role %s is not a guardian: %w", actor.Role, types.ErrAccessDenied)
	}
	dependents, err := r.directory.ListDependents(ctx, actor.AccountID)
	if err != nil {
		return fmt.Errorf("list dependents: %w", err)
	}
	for _, d := range dependents {
		err := r.Authorize(ctx, d.ID, sessionID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, types.ErrAccessDenied) {
			return err
		}
	}
	return fmt.Errorf("no dependent of account %s is entitled to session %s: %w", actor.AccountID, sessionID, types.ErrAccessDenied)
}

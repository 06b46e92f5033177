package database

import (
	"context"

	"github.com/pkg/errors"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// The directory, entitlement and slide tables are owned by other subsystems;
// this service only reads them.

func (m *Manager) GetAccount(ctx context.Context, accountID string) (*types.Account, error) {
	var account types.Account
	query := m.db.Rebind(`SELECT id, name, role, organization_id FROM accounts WHERE id = ?`)
	if err := m.db.GetContext(ctx, &account, query, accountID); err != nil {
		if isNoRows(err) {
			return nil, interfaces.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to query account")
	}
	return &account, nil
}

func (m *Manager) GetDependent(ctx context.Context, childID string) (*types.Dependent, error) {
	var dependent types.Dependent
	query := m.db.Rebind(`SELECT id, account_id, name, age FROM children WHERE id = ?`)
	if err := m.db.GetContext(ctx, &dependent, query, childID); err != nil {
		if isNoRows(err) {
			return nil, interfaces.ErrDependentNotFound
		}
		return nil, errors.Wrap(err, "failed to query dependent")
	}
	return &dependent, nil
}

func (m *Manager) ListDependents(ctx context.Context, accountID string) ([]*types.Dependent, error) {
	dependents := []*types.Dependent{}
	query := m.db.Rebind(`SELECT id, account_id, name, age FROM children WHERE account_id = ? ORDER BY name ASC, id ASC`)
	if err := m.db.SelectContext(ctx, &dependents, query, accountID); err != nil {
		return nil, errors.Wrap(err, "failed to query dependents")
	}
	return dependents, nil
}

// ListEntitlements returns paid and unpaid records; callers filter.
func (m *Manager) ListEntitlements(ctx context.Context, childID string) ([]*types.Entitlement, error) {
	entitlements := []*types.Entitlement{}
	query := m.db.Rebind(`
		SELECT id, child_id, course_id, session_id, session_ids, metadata, paid
		FROM entitlements WHERE child_id = ? ORDER BY id ASC
	`)
	if err := m.db.SelectContext(ctx, &entitlements, query, childID); err != nil {
		return nil, errors.Wrap(err, "failed to query entitlements")
	}
	return entitlements, nil
}

func (m *Manager) SlideBelongsToLesson(ctx context.Context, lessonID, slideID string) (bool, error) {
	var count int
	query := m.db.Rebind(`SELECT COUNT(*) FROM lesson_slides WHERE id = ? AND lesson_id = ?`)
	if err := m.db.GetContext(ctx, &count, query, slideID, lessonID); err != nil {
		return false, errors.Wrap(err, "failed to query slide")
	}
	return count > 0, nil
}

func (m *Manager) FirstSlide(ctx context.Context, lessonID string) (string, error) {
	var slideID string
	query := m.db.Rebind(`SELECT id FROM lesson_slides WHERE lesson_id = ? ORDER BY position ASC, id ASC LIMIT 1`)
	if err := m.db.GetContext(ctx, &slideID, query, lessonID); err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to query first slide")
	}
	return slideID, nil
}

package approval

import (
	"slices"

	"prodir/internal/profile/models"
	"prodir/pkg/domain"
)

// Operation names a workflow action a caller may attempt.
type Operation string

const (
	OpApprove          Operation = "approve"
	OpSendToSuperAdmin Operation = "sendToSuperAdmin"
	OpPublish          Operation = "publish"
	OpResubmit         Operation = "resubmit"
	OpRemove           Operation = "remove"
	OpEdit             Operation = "edit"
)

// Rule is one row of the transition table. An empty To leaves status as is.
type Rule struct {
	From  []models.Status
	To    models.Status
	Roles []domain.Role
}

var moderators = []domain.Role{domain.RoleAdmin, domain.RoleDirectorAdmin, domain.RoleSuperAdmin}

// table is the single authority on who may move a profile where.
var table = map[Operation]Rule{
	OpApprove: {
		From:  []models.Status{models.StatusPending},
		To:    models.StatusAdminApproved,
		Roles: moderators,
	},
	OpSendToSuperAdmin: {
		From:  []models.Status{models.StatusAdminApproved},
		To:    models.StatusSentToSuperAdmin,
		Roles: moderators,
	},
	OpPublish: {
		From:  []models.Status{models.StatusSentToSuperAdmin},
		To:    models.StatusPublished,
		Roles: []domain.Role{domain.RoleSuperAdmin},
	},
	OpResubmit: {
		From:  []models.Status{models.StatusAdminApproved, models.StatusSentToSuperAdmin, models.StatusPublished},
		To:    models.StatusPending,
		Roles: moderators,
	},
	OpRemove: {
		From:  models.LiveStatuses(),
		To:    models.StatusDeleted,
		Roles: []domain.Role{domain.RoleSuperAdmin},
	},
	OpEdit: {
		From:  models.LiveStatuses(),
		Roles: moderators,
	},
}

// RuleFor returns the table row for op.
func RuleFor(op Operation) (Rule, bool) {
	r, ok := table[op]
	return r, ok
}

// Permits reports whether role may attempt op at all.
func Permits(op Operation, role domain.Role) bool {
	r, ok := table[op]
	return ok && slices.Contains(r.Roles, role)
}

// Accepts reports whether op may start from status.
func (r Rule) Accepts(status models.Status) bool {
	return slices.Contains(r.From, status)
}

package models

import (
	dErrors "prodir/pkg/domain-errors"
)

// Status is a profile's position in the moderation lifecycle. It is the
// single source of truth for what may happen to the record next.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAdminApproved    Status = "adminApproved"
	StatusSentToSuperAdmin Status = "sentToSuperAdmin"
	StatusPublished        Status = "published"
	// StatusDeleted is absorbing. Removal hard-deletes the record, so the
	// store never holds a deleted profile; the state exists for the table.
	StatusDeleted Status = "deleted"
)

// progress orders the live states. Deleted is outside the order.
var progress = map[Status]int{
	StatusPending:          0,
	StatusAdminApproved:    1,
	StatusSentToSuperAdmin: 2,
	StatusPublished:        3,
}

// ParseStatus accepts only members of the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st == StatusDeleted {
		return st, nil
	}
	if _, ok := progress[st]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "unknown status: "+s)
	}
	return st, nil
}

// LiveStatuses lists every state a stored profile can be in.
func LiveStatuses() []Status {
	return []Status{StatusPending, StatusAdminApproved, StatusSentToSuperAdmin, StatusPublished}
}

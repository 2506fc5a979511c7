package order

import "ms-docservices/internal/models"

// CanView reports whether the principal may read the order: the owner or an
// admin. Unauthorized reads yield ForbiddenError rather than NotFoundError;
// order IDs are unguessable UUIDs, so the existence signal a 403 carries is
// worthless to an attacker and the distinct code keeps the taxonomy honest.
func CanView(o models.Order, p models.Principal) bool {
	return o.UserID == p.ID || p.IsAdmin()
}

// CanManage reports whether the principal may progress orders through the
// fulfillment state machine.
func CanManage(p models.Principal) bool {
	return p.IsAdmin()
}

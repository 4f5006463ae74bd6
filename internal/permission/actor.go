package permission

// Actor is the caller of a service operation.
type Actor struct {
	UserID string
	Role   Role
}

func Guest() Actor {
	return Actor{Role: RoleGuest}
}

func (a Actor) Can(perm Permission) bool {
	return Has(a.Role, perm)
}

func (a Actor) CanModify(ownerID string, ownPerm, anyPerm Permission) bool {
	return CanModifyResource(a.Role, ownerID, a.UserID, ownPerm, anyPerm)
}

func (a Actor) IsAuthenticated() bool {
	return a.UserID != ""
}

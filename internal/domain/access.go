package domain

// Access is the ownership/collaborator view the permission checks run
// against. Services load it from the entity row plus its collaborator rows.
type Access struct {
	OwnerID       string
	IsShared      bool
	Collaborators []Collaborator
}

func (a Access) permissionOf(userID string) (Permission, bool) {
	for _, c := range a.Collaborators {
		if c.UserID == userID {
			return c.Permission, true
		}
	}
	return "", false
}

// CanAccess reports whether userID may read the entity: the owner, anyone
// on a shared entity, or a listed collaborator at any level.
func (a Access) CanAccess(userID string) bool {
	if userID == a.OwnerID {
		return true
	}
	if a.IsShared {
		return true
	}
	_, listed := a.permissionOf(userID)
	return listed
}

// CanModify reports whether userID may mutate the entity's payload: the
// owner, or a collaborator at edit or admin level.
func (a Access) CanModify(userID string) bool {
	if userID == a.OwnerID {
		return true
	}
	p, listed := a.permissionOf(userID)
	return listed && (p == PermissionEdit || p == PermissionAdmin)
}

// CanManage reports whether userID may change sharing and membership or
// delete the entity: the owner, or an admin-level collaborator.
func (a Access) CanManage(userID string) bool {
	if userID == a.OwnerID {
		return true
	}
	p, listed := a.permissionOf(userID)
	return listed && p == PermissionAdmin
}

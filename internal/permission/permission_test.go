package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHas(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		perm     Permission
		expected bool
	}{
		{"guest can view posts", RoleGuest, PostView, true},
		{"guest cannot create posts", RoleGuest, PostCreate, false},
		{"user can apply", RoleUser, ApplicationCreate, true},
		{"user cannot edit any post", RoleUser, PostUpdateAny, false},
		{"moderator reviews reports", RoleModerator, ReportReview, true},
		{"moderator cannot manage categories", RoleModerator, CategoryManage, false},
		{"admin manages users", RoleAdmin, UserManage, true},
		{"admin inherits user permissions", RoleAdmin, MessageSend, true},
		{"unknown role acts as guest", Role("superuser"), PostView, true},
		{"unknown role cannot create", Role("superuser"), PostCreate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Has(tt.role, tt.perm))
		})
	}
}

func TestCanModifyResource(t *testing.T) {
	assert.True(t, CanModifyResource(RoleUser, "u1", "u1", PostUpdateOwn, PostUpdateAny))
	assert.False(t, CanModifyResource(RoleUser, "u1", "u2", PostUpdateOwn, PostUpdateAny))
	assert.True(t, CanModifyResource(RoleModerator, "u1", "u2", PostUpdateOwn, PostUpdateAny))
	assert.False(t, CanModifyResource(RoleGuest, "", "", PostUpdateOwn, PostUpdateAny))
}

func TestForReturnsCopy(t *testing.T) {
	perms := For(RoleUser)
	perms[0] = "tampered"

	assert.True(t, Has(RoleUser, PostView))
	assert.NotContains(t, For(RoleUser), Permission("tampered"))
	assert.Equal(t, []Permission{PostView}, For(Role("nope")))
}

func TestRoleIsValid(t *testing.T) {
	assert.True(t, RoleAdmin.IsValid())
	assert.False(t, Role("owner").IsValid())
}

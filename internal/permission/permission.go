package permission

type Role string

const (
	RoleGuest     Role = "guest"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

type Permission string

const (
	PostView            Permission = "post:view"
	PostCreate          Permission = "post:create"
	PostUpdateOwn       Permission = "post:update_own"
	PostUpdateAny       Permission = "post:update_any"
	PostDeleteOwn       Permission = "post:delete_own"
	PostDeleteAny       Permission = "post:delete_any"
	ApplicationCreate   Permission = "application:create"
	ApplicationReview   Permission = "application:review"
	ApplicationWithdraw Permission = "application:withdraw"
	ApplicationViewOwn  Permission = "application:view_own"
	MessageSend         Permission = "message:send"
	MessageRead         Permission = "message:read"
	NotificationRead    Permission = "notification:read"
	ProfileUpdate       Permission = "profile:update"
	FavoriteManage      Permission = "favorite:manage"
	CategoryManage      Permission = "category:manage"
	TagManage           Permission = "tag:manage"
	ReportCreate        Permission = "report:create"
	ReportReview        Permission = "report:review"
	StatsViewAdmin      Permission = "stats:view_admin"
	UserManage          Permission = "user:manage"
	PaymentPurchase     Permission = "payment:purchase"
)

var guestPermissions = []Permission{
	PostView,
}

var userPermissions = append(append([]Permission{}, guestPermissions...),
	PostCreate,
	PostUpdateOwn,
	PostDeleteOwn,
	ApplicationCreate,
	ApplicationReview,
	ApplicationWithdraw,
	ApplicationViewOwn,
	MessageSend,
	MessageRead,
	NotificationRead,
	ProfileUpdate,
	FavoriteManage,
	ReportCreate,
	PaymentPurchase,
)

var moderatorPermissions = append(append([]Permission{}, userPermissions...),
	PostUpdateAny,
	PostDeleteAny,
	ReportReview,
	TagManage,
)

var adminPermissions = append(append([]Permission{}, moderatorPermissions...),
	CategoryManage,
	StatsViewAdmin,
	UserManage,
)

var rolePermissions = map[Role][]Permission{
	RoleGuest:     guestPermissions,
	RoleUser:      userPermissions,
	RoleModerator: moderatorPermissions,
	RoleAdmin:     adminPermissions,
}

// For returns the permission set of role. Unknown roles get the guest set.
func For(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = guestPermissions
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

func Has(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = guestPermissions
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// CanModifyResource checks the owner path (ownPerm) first, then the moderator path (anyPerm).
func CanModifyResource(role Role, ownerID, actorID string, ownPerm, anyPerm Permission) bool {
	if actorID != "" && ownerID == actorID && Has(role, ownPerm) {
		return true
	}
	return Has(role, anyPerm)
}

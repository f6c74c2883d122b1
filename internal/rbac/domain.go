package rbac

// Role is a coarse permission grouping carried in the access token.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleStoreManager Role = "STORE_MANAGER"
)

// Resource names the kind of record an action targets.
type Resource string

const (
	ResourceAccount Resource = "account"
	ResourceInvoice Resource = "invoice"
	ResourcePayment Resource = "payment"
)

// Action names what the principal wants to do with a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	// ActionAdjust covers balance, credit limit and status changes on accounts.
	ActionAdjust Action = "adjust"
	ActionDelete Action = "delete"
)

// Principal describes the authenticated actor.
type Principal struct {
	ID    int64
	Email string
	Role  Role
}

// IsZero reports whether no principal was resolved.
func (p Principal) IsZero() bool {
	return p.ID == 0 && p.Role == ""
}

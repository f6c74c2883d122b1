package rbac

type permission struct {
	resource Resource
	action   Action
}

// Policy decides whether a principal may perform an action on a resource.
// Unknown combinations are denied.
type Policy struct {
	grants map[permission]map[Role]struct{}
}

// DefaultPolicy returns the billing role matrix. Account adjustments and all
// deletions are reserved for ADMIN.
func DefaultPolicy() Policy {
	p := Policy{grants: make(map[permission]map[Role]struct{})}
	everyone := []Role{RoleAdmin, RoleStoreManager}
	for _, res := range []Resource{ResourceAccount, ResourceInvoice, ResourcePayment} {
		p.Grant(res, ActionRead, everyone...)
		p.Grant(res, ActionCreate, everyone...)
		p.Grant(res, ActionDelete, RoleAdmin)
	}
	p.Grant(ResourceAccount, ActionAdjust, RoleAdmin)
	p.Grant(ResourceInvoice, ActionUpdate, everyone...)
	p.Grant(ResourcePayment, ActionUpdate, everyone...)
	return p
}

// Grant allows roles to perform action on resource.
func (p Policy) Grant(resource Resource, action Action, roles ...Role) {
	key := permission{resource: resource, action: action}
	set, ok := p.grants[key]
	if !ok {
		set = make(map[Role]struct{}, len(roles))
		p.grants[key] = set
	}
	for _, r := range roles {
		set[r] = struct{}{}
	}
}

// Allow reports whether principal may perform action on resource.
func (p Policy) Allow(principal Principal, action Action, resource Resource) bool {
	if principal.IsZero() {
		return false
	}
	_, ok := p.grants[permission{resource: resource, action: action}][principal.Role]
	return ok
}

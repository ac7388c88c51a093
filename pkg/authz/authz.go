// Package authz resolves a verified principal to the set of owner
// identifiers it may act as for a given operation kind, per spec §4.1.
// It is a pure function package: no store, no network, no process state.
package authz

// OpKind classifies an operation for role-set lookup.
type OpKind int

const (
	// OpRead covers get/find/list operations.
	OpRead OpKind = iota
	// OpMutate covers update, post message, store prompt, record action,
	// review, thread ops, and annotations.
	OpMutate
	// OpDelete covers task/entity deletion.
	OpDelete
)

// Role is an organisation membership role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleAgent  Role = "agent"
	RoleViewer Role = "viewer"
)

// OrgMembership describes a principal's role within one organisation.
type OrgMembership struct {
	Role Role
}

// Principal is a verified caller: their own email (always an implicit
// owner of their own resources) plus a mapping of organisation id to
// their membership role in that organisation.
type Principal struct {
	Email         string
	Organizations map[string]OrgMembership
}

// allowedRoles returns the role set permitted to perform ops of kind k,
// per spec §4.1's three buckets.
func allowedRoles(k OpKind) map[Role]struct{} {
	switch k {
	case OpRead:
		return map[Role]struct{}{RoleAdmin: {}, RoleMember: {}, RoleAgent: {}, RoleViewer: {}}
	case OpDelete:
		return map[Role]struct{}{RoleAdmin: {}, RoleMember: {}}
	default: // OpMutate
		return map[Role]struct{}{RoleAdmin: {}, RoleMember: {}, RoleAgent: {}}
	}
}

// ResolveOwners yields {principal.Email} ∪ {org_id | role(principal,org_id) ∈ allowed_roles(op)}.
func ResolveOwners(principal Principal, op OpKind) map[string]struct{} {
	owners := map[string]struct{}{principal.Email: {}}
	allowed := allowedRoles(op)
	for orgID, membership := range principal.Organizations {
		if _, ok := allowed[membership.Role]; ok {
			owners[orgID] = struct{}{}
		}
	}
	return owners
}

// CanActAsOwner reports whether principal may perform op-kind operations
// scoped to ownerID — the gate applied before every task/entity operation.
func CanActAsOwner(principal Principal, op OpKind, ownerID string) bool {
	_, ok := ResolveOwners(principal, op)[ownerID]
	return ok
}

// FilterOwners validates an explicit owners[] filter passed by a caller:
// every element must itself satisfy ResolveOwners, or the whole filter is
// rejected (§4.1 "fails with Forbidden"). Returns ok=false on the first
// disallowed element.
func FilterOwners(principal Principal, op OpKind, requested []string) (allowed []string, ok bool) {
	resolved := ResolveOwners(principal, op)
	for _, o := range requested {
		if _, present := resolved[o]; !present {
			return nil, false
		}
	}
	return requested, true
}

package authz

import "testing"

func TestResolveOwnersAlwaysIncludesSelf(t *testing.T) {
	p := Principal{Email: "tom@myspace.com"}
	owners := ResolveOwners(p, OpRead)
	if _, ok := owners["tom@myspace.com"]; !ok {
		t.Fatalf("expected principal email in owners, got %v", owners)
	}
}

func TestResolveOwnersOrgViewerCanReadNotMutate(t *testing.T) {
	p := Principal{
		Email: "viewer@example.com",
		Organizations: map[string]OrgMembership{
			"acme": {Role: RoleViewer},
		},
	}
	readOwners := ResolveOwners(p, OpRead)
	if _, ok := readOwners["acme"]; !ok {
		t.Fatalf("viewer should be able to read org-owned resources")
	}

	mutateOwners := ResolveOwners(p, OpMutate)
	if _, ok := mutateOwners["acme"]; ok {
		t.Fatalf("viewer should not be able to mutate org-owned resources")
	}
}

func TestResolveOwnersOrgMemberCanMutateAndDelete(t *testing.T) {
	p := Principal{
		Email: "member@example.com",
		Organizations: map[string]OrgMembership{
			"acme": {Role: RoleMember},
		},
	}
	if !CanActAsOwner(p, OpMutate, "acme") {
		t.Fatalf("member should be able to mutate org-owned resources")
	}
	if !CanActAsOwner(p, OpDelete, "acme") {
		t.Fatalf("member should be able to delete org-owned resources")
	}
}

func TestResolveOwnersOrgAgentCannotDelete(t *testing.T) {
	p := Principal{
		Email: "agent@example.com",
		Organizations: map[string]OrgMembership{
			"acme": {Role: RoleAgent},
		},
	}
	if CanActAsOwner(p, OpDelete, "acme") {
		t.Fatalf("agent should not be able to delete org-owned resources")
	}
	if !CanActAsOwner(p, OpMutate, "acme") {
		t.Fatalf("agent should be able to mutate org-owned resources")
	}
}

func TestFilterOwnersRejectsDisallowedElement(t *testing.T) {
	p := Principal{
		Email: "tom@myspace.com",
		Organizations: map[string]OrgMembership{
			"acme": {Role: RoleMember},
		},
	}
	if _, ok := FilterOwners(p, OpRead, []string{"acme", "other-org"}); ok {
		t.Fatalf("expected FilterOwners to reject an org the principal has no role in")
	}
	if _, ok := FilterOwners(p, OpRead, []string{"acme"}); !ok {
		t.Fatalf("expected FilterOwners to allow an org the principal belongs to")
	}
}

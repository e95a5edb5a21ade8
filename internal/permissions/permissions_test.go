package permissions

import "testing"

func TestAdminGrantsEveryLevel(t *testing.T) {
	p := Principal{Role: RoleAdmin}
	for _, lvl := range []Level{LevelPublic, LevelAgent, LevelAdmin, LevelAdminPin} {
		if !Allows(p, lvl) {
			t.Errorf("admin should be allowed at level %s", lvl)
		}
	}
}

func TestAgentDeniedAdminLevels(t *testing.T) {
	p := Principal{Role: RoleAgent}
	if !Allows(p, LevelPublic) || !Allows(p, LevelAgent) {
		t.Error("agent should be allowed at public and agent levels")
	}
	if Allows(p, LevelAdmin) || Allows(p, LevelAdminPin) {
		t.Error("agent should not be allowed at admin levels")
	}
}

func TestPublicOnlyPublic(t *testing.T) {
	p := Principal{Role: RolePublic}
	if !Allows(p, LevelPublic) {
		t.Error("public role should satisfy public level")
	}
	if Allows(p, LevelAgent) {
		t.Error("public role must not satisfy agent level")
	}
}

func TestTempRegistrationRestrictedToAgentLevel(t *testing.T) {
	p := Principal{Role: RoleAdmin, TempRegistration: true}
	if Allows(p, LevelAdmin) {
		t.Error("temp-registration principal must not reach admin level even with admin role")
	}
	if !Allows(p, LevelAgent) {
		t.Error("temp-registration principal must reach agent level (registration endpoints)")
	}
	if Allows(p, LevelPublic) {
		t.Error("temp-registration principal is scoped to registration endpoints only")
	}
}

// TestPermissionMonotonicity covers testable property 9: any request
// accepted at level L is accepted at any lower level for the same
// principal, and any request rejected at level L is rejected at any
// stricter level.
func TestPermissionMonotonicity(t *testing.T) {
	order := []Level{LevelPublic, LevelAgent, LevelAdmin, LevelAdminPin}
	roles := []Role{RolePublic, RoleAgent, RoleAdmin}

	for _, role := range roles {
		p := Principal{Role: role}
		sawDenied := false
		for _, lvl := range order {
			allowed := Allows(p, lvl)
			if sawDenied && allowed {
				t.Errorf("role %s: level %s allowed after a stricter earlier level was denied", role, lvl)
			}
			if !allowed {
				sawDenied = true
			}
		}
	}
}

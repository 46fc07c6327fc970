package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllows(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleAdmin, UsersManage, true},
		{RoleAdmin, "anything.at_all", true},
		{RoleManager, ContactsDelete, true},
		{RoleManager, SMSSend, true},
		{RoleManager, UsersManage, false},
		{RoleTechnician, ServicesWrite, true},
		{RoleTechnician, ContactsWrite, false},
		{RoleTechnician, InvoicesDelete, false},
		{RoleViewer, ContactsRead, true},
		{RoleViewer, ContactsWrite, false},
		{RoleViewer, AIUse, false},
		{"ghost", ContactsRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.perm, func(t *testing.T) {
			assert.Equal(t, tt.want, Allows(tt.role, tt.perm))
		})
	}
}

func TestWildcardDoesNotMatchPrefixOfOtherResource(t *testing.T) {
	// "sms.*" must not grant "smsx.read"
	assert.False(t, grantMatches("sms.*", "smsx.read"))
	assert.True(t, grantMatches("sms.*", "sms.read"))
}

func TestRolesAreValid(t *testing.T) {
	for _, role := range Roles() {
		assert.True(t, ValidRole(role), role)
		assert.NotEmpty(t, Permissions(role), role)
	}
	assert.False(t, ValidRole("owner"))
}

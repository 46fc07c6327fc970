// Package policy holds the role to permission tables used by the auth gate.
package policy

import (
	"sort"
	"strings"
)

// Roles
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTechnician = "technician"
	RoleViewer     = "viewer"
)

// Permissions
const (
	ContactsRead   = "contacts.read"
	ContactsWrite  = "contacts.write"
	ContactsDelete = "contacts.delete"

	DealsRead   = "deals.read"
	DealsWrite  = "deals.write"
	DealsDelete = "deals.delete"

	TasksRead   = "tasks.read"
	TasksWrite  = "tasks.write"
	TasksDelete = "tasks.delete"

	ServicesRead   = "services.read"
	ServicesWrite  = "services.write"
	ServicesDelete = "services.delete"

	InvoicesRead   = "invoices.read"
	InvoicesWrite  = "invoices.write"
	InvoicesDelete = "invoices.delete"

	PaymentsRead  = "payments.read"
	PaymentsWrite = "payments.write"

	AttachmentsRead   = "attachments.read"
	AttachmentsWrite  = "attachments.write"
	AttachmentsDelete = "attachments.delete"

	AutomationsManage  = "automations.manage"
	WebhooksManage     = "webhooks.manage"
	SettingsManage     = "settings.manage"
	IntegrationsManage = "integrations.manage"
	UsersManage        = "users.manage"

	SMSRead     = "sms.read"
	SMSSend     = "sms.send"
	AIUse       = "ai.use"
	ReportsView = "reports.view"
	AuditRead   = "audit.read"
)

var table = map[string][]string{
	RoleAdmin: {"*"},
	RoleManager: {
		"contacts.*", "deals.*", "tasks.*", "services.*", "invoices.*",
		"payments.*", "attachments.*", "sms.*",
		AutomationsManage, WebhooksManage, SettingsManage, IntegrationsManage,
		AIUse, ReportsView, AuditRead,
	},
	RoleTechnician: {
		ContactsRead, DealsRead, InvoicesRead,
		TasksRead, TasksWrite,
		ServicesRead, ServicesWrite,
		AttachmentsRead, AttachmentsWrite,
		SMSRead, SMSSend, AIUse, IntegrationsManage,
	},
	RoleViewer: {
		ContactsRead, DealsRead, TasksRead, ServicesRead, InvoicesRead,
		PaymentsRead, AttachmentsRead, SMSRead, ReportsView,
	},
}

// Roles lists the known roles in descending privilege order.
func Roles() []string {
	return []string{RoleAdmin, RoleManager, RoleTechnician, RoleViewer}
}

// ValidRole reports whether role appears in the table.
func ValidRole(role string) bool {
	_, ok := table[role]
	return ok
}

// Allows reports whether role grants perm. Grants may be exact, "resource.*"
// or "*".
func Allows(role, perm string) bool {
	for _, grant := range table[role] {
		if grantMatches(grant, perm) {
			return true
		}
	}
	return false
}

// Permissions returns the grants of role, sorted.
func Permissions(role string) []string {
	grants := append([]string(nil), table[role]...)
	sort.Strings(grants)
	return grants
}

func grantMatches(grant, perm string) bool {
	if grant == "*" || grant == perm {
		return true
	}
	if prefix, ok := strings.CutSuffix(grant, ".*"); ok {
		return strings.HasPrefix(perm, prefix+".")
	}
	return false
}

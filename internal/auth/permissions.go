package auth

// Role names as stored on employees
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Action represents a permission action
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

// Resource names checked by the HTTP layer
const (
	ResourceAccount    = "account"
	ResourceContact    = "contact"
	ResourceEmployee   = "employee"
	ResourceProject    = "project"
	ResourceTask       = "task"
	ResourceComment    = "comment"
	ResourceCalendar   = "calendar"
	ResourceAttendance = "attendance"
	ResourceInvoice    = "invoice"
	ResourceTemplate   = "template"
	ResourceSettings   = "settings"
)

// staffDenied lists what staff may not do. Admins may do everything.
var staffDenied = map[string]map[Action]bool{
	ResourceEmployee: {ActionView: true, ActionCreate: true, ActionEdit: true, ActionDelete: true, ActionExport: true},
	ResourceSettings: {ActionView: true, ActionEdit: true},
	ResourceInvoice:  {ActionDelete: true},
	ResourceTemplate: {ActionDelete: true},
	// correcting attendance records is the only attendance edit
	ResourceAttendance: {ActionEdit: true},
}

// Can reports whether role may perform action on resource
func Can(role string, action Action, resource string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleStaff:
		return !staffDenied[resource][action]
	default:
		return false
	}
}

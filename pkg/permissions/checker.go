// Package permissions provides the permission keys of the planner and a
// Checker capability injected into the API facade.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "shifts.*")
//   - "resource.action" - Specific action (e.g., "shifts.create")
package permissions

import (
	"strings"

	"github.com/teamplanner/planner-backend/pkg/actor"
)

// Permission keys recognized by the core. Every state-changing entry point
// names exactly one of these.
const (
	ViewSchedule       = "schedule.view"
	RunOrchestrator    = "schedule.orchestrate"
	CreateShift        = "shifts.create"
	EditShift          = "shifts.edit"
	DeleteShift        = "shifts.delete"
	BulkEditShifts     = "shifts.bulk"
	ExportShifts       = "shifts.export"
	ImportShifts       = "shifts.import"
	ManageTemplates    = "templates.manage"
	ManagePatterns     = "patterns.manage"
	GeneratePatterns   = "patterns.generate"
	RequestSwap        = "swaps.request"
	ApproveSwap        = "swaps.approve"
	CancelSwap         = "swaps.cancel"
	ManageSwapRules    = "swaps.rules.manage"
	CreateDelegation   = "swaps.delegate"
	RequestLeave       = "leaves.request"
	ApproveLeave       = "leaves.approve"
	CancelLeave        = "leaves.cancel"
	ViewConflicts      = "conflicts.view"
	ManageTeam         = "teams.manage"
	ManageUsers        = "users.manage"
)

// All lists every permission key, for validation and token minting.
var All = []string{
	ViewSchedule, RunOrchestrator,
	CreateShift, EditShift, DeleteShift, BulkEditShifts, ExportShifts, ImportShifts,
	ManageTemplates, ManagePatterns, GeneratePatterns,
	RequestSwap, ApproveSwap, CancelSwap, ManageSwapRules, CreateDelegation,
	RequestLeave, ApproveLeave, CancelLeave,
	ViewConflicts, ManageTeam, ManageUsers,
}

// Checker decides whether an actor holds a permission key. The core consumes
// this capability; storage and role resolution live outside.
type Checker interface {
	Has(a *actor.Actor, permission string) bool
}

// ClaimsChecker evaluates permissions against the keys carried on the actor
// (populated from the identity token by the HTTP middleware).
type ClaimsChecker struct{}

// Has reports whether the actor's permission set covers the required key.
func (ClaimsChecker) Has(a *actor.Actor, permission string) bool {
	if a == nil {
		return false
	}
	if a.IsSystem() {
		return true
	}
	return HasPermission(a.Permissions, permission)
}

// HasPermission checks if the permission set includes the required key.
// Supports wildcard matching:
//   - "*" matches everything
//   - "shifts.*" matches "shifts.create", "shifts.edit", etc.
//   - Exact match for specific permissions
func HasPermission(perms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range perms {
		if p == "*" {
			return true
		}
		if p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the set covers any of the required keys.
func HasAnyPermission(perms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(perms, req) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if the set covers all of the required keys.
func HasAllPermissions(perms []string, required []string) bool {
	for _, req := range required {
		if !HasPermission(perms, req) {
			return false
		}
	}
	return true
}

// IsValidPermission checks if a permission string is known or follows the
// resource.action pattern.
func IsValidPermission(perm string) bool {
	if perm == "*" {
		return true
	}
	for _, p := range All {
		if p == perm {
			return true
		}
	}
	if strings.HasSuffix(perm, ".*") {
		return true
	}
	parts := strings.Split(perm, ".")
	return len(parts) >= 2
}

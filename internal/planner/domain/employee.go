// Package domain holds the persisted entities of the shift planner.
// Entities are data carriers; business logic lives in the service layer.
package domain

import (
	"time"

	"github.com/lib/pq"
)

// Employee represents an engineer who can be scheduled.
// Employees are never hard-deleted while shifts reference them; the
// Active flag is the only lifecycle mutation.
type Employee struct {
	ID                     string         `db:"id" json:"id"`
	Name                   string         `db:"name" json:"name"`
	Email                  string         `db:"email" json:"email"`
	TeamID                 *string        `db:"team_id" json:"team_id,omitempty"`
	Skills                 pq.StringArray `db:"skills" json:"skills"`
	FTE                    float64        `db:"fte" json:"fte"`
	HireDate               time.Time      `db:"hire_date" json:"hire_date"`
	Active                 bool           `db:"active" json:"active"`
	AvailableForIncidents  bool           `db:"available_for_incidents" json:"available_for_incidents"`
	AvailableForWaakdienst bool           `db:"available_for_waakdienst" json:"available_for_waakdienst"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt              *time.Time     `db:"deleted_at" json:"-"`
}

// HasSkill reports whether the employee possesses the named skill.
func (e *Employee) HasSkill(skill string) bool {
	for _, s := range e.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// HasSkills reports whether the employee possesses every skill in the set.
func (e *Employee) HasSkills(skills []string) bool {
	for _, s := range skills {
		if !e.HasSkill(s) {
			return false
		}
	}
	return true
}

// SeniorityMonths returns the whole months of tenure at the given instant.
func (e *Employee) SeniorityMonths(at time.Time) int {
	if at.Before(e.HireDate) {
		return 0
	}
	months := (at.Year()-e.HireDate.Year())*12 + int(at.Month()) - int(e.HireDate.Month())
	if at.Day() < e.HireDate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// AvailableFor reports whether the employee opted in to the shift class.
// Changes and project work follow the incidents flag.
func (e *Employee) AvailableFor(class ShiftClass) bool {
	switch class {
	case ClassWaakdienst:
		return e.AvailableForWaakdienst
	default:
		return e.AvailableForIncidents
	}
}

// Team groups employees under an optional department and manager.
// An employee belongs to at most one team.
type Team struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	DepartmentID *string    `db:"department_id" json:"department_id,omitempty"`
	ManagerID    *string    `db:"manager_id" json:"manager_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/messaging"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

// GenerateRequest is the input to schedule preview and apply.
type GenerateRequest struct {
	WindowStart time.Time           `json:"window_start" validate:"required"`
	WindowEnd   time.Time           `json:"window_end" validate:"required,gtfield=WindowStart"`
	Classes     []domain.ShiftClass `json:"classes" validate:"required,min=1"`
	TeamID      string              `json:"team_id" validate:"required,uuid"`
	Force       bool                `json:"force"`
}

// ShiftRef identifies one generated shift in a report.
type ShiftRef struct {
	ID            string            `json:"id,omitempty"`
	TemplateID    string            `json:"template_id"`
	EmployeeID    string            `json:"employee_id"`
	Class         domain.ShiftClass `json:"class"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	DurationHours float64           `json:"duration_hours"`
	Reason        string            `json:"reason"`
}

// UnassignedRow records a slot the generator could not fill.
type UnassignedRow struct {
	Date   string            `json:"date"`
	Class  domain.ShiftClass `json:"class"`
	Reason string            `json:"reason"`
}

// ScheduleReport is the outcome of a preview or apply run.
type ScheduleReport struct {
	Created    []ShiftRef      `json:"created"`
	Unassigned []UnassignedRow `json:"unassigned"`
	Conflicts  []Conflict      `json:"conflicts"`
	Applied    bool            `json:"applied"`
}

// classGeneratorOrder fixes the cross-class execution order so the
// same-week incidents/waakdienst exclusion can be enforced.
var classGeneratorOrder = []domain.ShiftClass{
	domain.ClassIncidents, domain.ClassWaakdienst, domain.ClassChanges, domain.ClassProject,
}

// Orchestrator generates schedules over a window, consulting the
// fairness engine per assignment and the conflict layer per interval.
type Orchestrator struct {
	store  Store
	clock  calendar.Clock
	cal    *calendar.Calendar
	cfg    *config.SchedulingConfig
	perms  permissions.Checker
	events EventPublisher
	log    *logger.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(store Store, clock calendar.Clock, cal *calendar.Calendar, cfg *config.SchedulingConfig, perms permissions.Checker, events EventPublisher, log *logger.Logger) *Orchestrator {
	return &Orchestrator{store: store, clock: clock, cal: cal, cfg: cfg, perms: perms, events: events, log: log}
}

// Preview runs the generators without writing anything.
func (o *Orchestrator) Preview(ctx context.Context, a *actor.Actor, req *GenerateRequest) (*ScheduleReport, error) {
	if !o.perms.Has(a, permissions.RunOrchestrator) {
		return nil, errors.PermissionDenied(permissions.RunOrchestrator)
	}
	if err := o.validate(ctx, o.store, req); err != nil {
		return nil, err
	}
	report, _, err := o.plan(ctx, o.store, req)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Apply runs the generators and persists every produced shift in a
// single transaction. Cancellation of ctx rolls the whole run back.
func (o *Orchestrator) Apply(ctx context.Context, a *actor.Actor, req *GenerateRequest) (*ScheduleReport, error) {
	if !o.perms.Has(a, permissions.RunOrchestrator) {
		return nil, errors.PermissionDenied(permissions.RunOrchestrator)
	}
	if err := o.validate(ctx, o.store, req); err != nil {
		return nil, err
	}

	var report *ScheduleReport
	err := o.store.Atomically(ctx, func(tx Store) error {
		var planned []domain.Shift
		var err error
		report, planned, err = o.plan(ctx, tx, req)
		if err != nil {
			return err
		}
		for i := range planned {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := tx.Shifts().Create(ctx, &planned[i]); err != nil {
				return err
			}
			report.Created[i].ID = planned[i].ID
		}
		// One usage tick per template per run
		usage := map[string]int{}
		for i := range planned {
			usage[planned[i].TemplateID]++
		}
		templateIDs := make([]string, 0, len(usage))
		for id := range usage {
			templateIDs = append(templateIDs, id)
		}
		sort.Strings(templateIDs)
		for _, id := range templateIDs {
			if err := tx.Templates().IncrementUsage(ctx, id, usage[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.Applied = true

	o.publishApplied(ctx, a, req, report)
	return report, nil
}

func (o *Orchestrator) validate(ctx context.Context, st Store, req *GenerateRequest) error {
	if !req.WindowEnd.After(req.WindowStart) {
		return errors.BadRequest("window_end must be after window_start")
	}
	if len(req.Classes) == 0 {
		return errors.BadRequest("at least one shift class is required")
	}
	for _, c := range req.Classes {
		if !c.IsValid() {
			return errors.BadRequest(fmt.Sprintf("unknown shift class %q", c))
		}
	}
	if _, err := st.Teams().GetByID(ctx, req.TeamID); err != nil {
		return err
	}
	return nil
}

// plan runs the per-class generators in fixed order against the given
// store binding and returns the report plus the shifts to persist.
// It never writes.
func (o *Orchestrator) plan(ctx context.Context, st Store, req *GenerateRequest) (*ScheduleReport, []domain.Shift, error) {
	report := &ScheduleReport{
		Created:    []ShiftRef{},
		Unassigned: []UnassignedRow{},
		Conflicts:  []Conflict{},
	}

	requested := map[domain.ShiftClass]bool{}
	for _, c := range req.Classes {
		requested[c] = true
	}

	fairness := NewFairnessEngine(st, o.cal, o.cfg, o.log)
	conflicts := NewConflictService(st, o.clock, o.cal, o.cfg, o.log)

	run := &generationRun{
		orch:        o,
		store:       st,
		fairness:    fairness,
		conflicts:   conflicts,
		req:         req,
		report:      report,
		weekHolders: map[string]map[domain.ShiftClass]string{},
	}

	for _, class := range classGeneratorOrder {
		if !requested[class] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := run.generateClass(ctx, class); err != nil {
			return nil, nil, err
		}
	}

	return report, run.planned, nil
}

// generationRun carries the in-flight state of one plan invocation so
// that later classes see earlier in-run assignments.
type generationRun struct {
	orch        *Orchestrator
	store       Store
	fairness    *FairnessEngine
	conflicts   *ConflictService
	req         *GenerateRequest
	report      *ScheduleReport
	planned     []domain.Shift
	weekHolders map[string]map[domain.ShiftClass]string // iso week key -> class -> employee
}

func weekKey(monday calendar.Date) string {
	y, w := monday.ISOWeek()
	return strconv.Itoa(y) + "-W" + strconv.Itoa(w)
}

func (r *generationRun) generateClass(ctx context.Context, class domain.ShiftClass) error {
	tpl, err := r.templateForClass(ctx, class)
	if err != nil {
		return err
	}

	switch class {
	case domain.ClassIncidents:
		return r.generateWeekly(ctx, class, tpl, r.incidentsIntervals)
	case domain.ClassWaakdienst:
		return r.generateWeekly(ctx, class, tpl, r.waakdienstIntervals)
	default:
		return r.generateDaily(ctx, class, tpl)
	}
}

// templateForClass picks the active template for a class, favorites
// first, then by name for determinism.
func (r *generationRun) templateForClass(ctx context.Context, class domain.ShiftClass) (*domain.ShiftTemplate, error) {
	all, err := r.store.Templates().List(ctx, false)
	if err != nil {
		return nil, err
	}
	var matching []domain.ShiftTemplate
	for i := range all {
		if all[i].Class == class && all[i].Active {
			matching = append(matching, all[i])
		}
	}
	if len(matching) == 0 {
		return nil, errors.BadRequest(fmt.Sprintf("no active shift template for class %q", class))
	}
	sort.Slice(matching, func(i, j int) bool {
		if matching[i].Favorite != matching[j].Favorite {
			return matching[i].Favorite
		}
		if matching[i].Name != matching[j].Name {
			return matching[i].Name < matching[j].Name
		}
		return matching[i].ID < matching[j].ID
	})
	return &matching[0], nil
}

type interval struct {
	start time.Time
	end   time.Time
}

// incidentsIntervals returns the five business-hour day blocks of the
// week that fall inside the request window.
func (r *generationRun) incidentsIntervals(monday calendar.Date, tpl *domain.ShiftTemplate) []interval {
	loc := r.orch.cal.Location()
	sh, sm := parseTimeOfDay(tpl.StartTime, 8, 0)
	eh, em := parseTimeOfDay(tpl.EndTime, 17, 0)

	var out []interval
	for i := 0; i < 5; i++ {
		day := monday.AddDays(i)
		iv := interval{start: day.At(sh, sm, loc), end: day.At(eh, em, loc)}
		if r.inWindow(iv) {
			out = append(out, iv)
		}
	}
	return out
}

// waakdienstIntervals returns the seven on-call blocks complementing the
// incidents hours: weekday evenings into the next morning, and the
// weekend split at midnight.
func (r *generationRun) waakdienstIntervals(monday calendar.Date, _ *domain.ShiftTemplate) []interval {
	loc := r.orch.cal.Location()
	var out []interval
	// Mon..Thu 17:00 -> next day 08:00
	for i := 0; i < 4; i++ {
		day := monday.AddDays(i)
		out = append(out, interval{start: day.At(17, 0, loc), end: day.AddDays(1).At(8, 0, loc)})
	}
	fri := monday.AddDays(4)
	sat := monday.AddDays(5)
	sun := monday.AddDays(6)
	out = append(out,
		interval{start: fri.At(17, 0, loc), end: sat.At(0, 0, loc)},
		interval{start: sat.At(0, 0, loc), end: sun.At(0, 0, loc)},
		interval{start: sun.At(0, 0, loc), end: monday.AddDays(7).At(8, 0, loc)},
	)

	var inWin []interval
	for _, iv := range out {
		if r.inWindow(iv) {
			inWin = append(inWin, iv)
		}
	}
	return inWin
}

func (r *generationRun) inWindow(iv interval) bool {
	return !iv.start.Before(r.req.WindowStart) && iv.start.Before(r.req.WindowEnd)
}

// generateWeekly assigns one employee per ISO week for block-rotation
// classes (incidents, waakdienst).
func (r *generationRun) generateWeekly(ctx context.Context, class domain.ShiftClass, tpl *domain.ShiftTemplate, intervalsOf func(calendar.Date, *domain.ShiftTemplate) []interval) error {
	loc := r.orch.cal.Location()
	windowStart := calendar.DateOf(r.req.WindowStart, loc)
	windowEndDate := calendar.DateOf(r.req.WindowEnd.Add(-time.Nanosecond), loc)

	fairStart, fairEnd := r.fairness.WindowFor(windowEndDate)
	ledger, err := r.fairness.Ledger(ctx, class, fairStart, fairEnd, &r.req.TeamID)
	if err != nil {
		return err
	}

	for monday := windowStart.MondayOfWeek(); monday.Time(loc).Before(r.req.WindowEnd); monday = monday.AddDays(7) {
		if err := ctx.Err(); err != nil {
			return err
		}

		intervals := intervalsOf(monday, tpl)
		if len(intervals) == 0 {
			continue
		}

		open, err := r.openIntervals(ctx, class, intervals)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			continue // week already covered
		}

		holder, err := r.pickWeekHolder(ctx, class, monday, open, ledger)
		if err != nil {
			return err
		}
		if holder == nil {
			for _, iv := range open {
				r.report.Unassigned = append(r.report.Unassigned, UnassignedRow{
					Date:   calendar.DateOf(iv.start, loc).String(),
					Class:  class,
					Reason: "no eligible employee without blocking conflicts",
				})
			}
			continue
		}

		key := weekKey(monday)
		if r.weekHolders[key] == nil {
			r.weekHolders[key] = map[domain.ShiftClass]string{}
		}
		r.weekHolders[key][class] = holder.ID
		ledger.Record(holder.ID, DaysForAssignment(class))

		reason := fmt.Sprintf("auto-generated %s rotation for %s", class, key)
		for _, iv := range open {
			r.emit(class, tpl, holder.ID, iv, reason)
		}
	}
	return nil
}

// generateDaily fills changes and project work one day shift at a time
// for engineers not on incidents that week.
func (r *generationRun) generateDaily(ctx context.Context, class domain.ShiftClass, tpl *domain.ShiftTemplate) error {
	loc := r.orch.cal.Location()
	windowStart := calendar.DateOf(r.req.WindowStart, loc)
	windowEndDate := calendar.DateOf(r.req.WindowEnd.Add(-time.Nanosecond), loc)

	fairStart, fairEnd := r.fairness.WindowFor(windowEndDate)
	ledger, err := r.fairness.Ledger(ctx, class, fairStart, fairEnd, &r.req.TeamID)
	if err != nil {
		return err
	}

	sh, sm := parseTimeOfDay(tpl.StartTime, 8, 0)
	eh, em := parseTimeOfDay(tpl.EndTime, 17, 0)

	for _, day := range calendar.DatesBetween(windowStart, windowEndDate) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.orch.cal.IsWorkday(day) {
			continue
		}
		iv := interval{start: day.At(sh, sm, loc), end: day.At(eh, em, loc)}
		if !r.inWindow(iv) {
			continue
		}

		open, err := r.openIntervals(ctx, class, []interval{iv})
		if err != nil {
			return err
		}
		if len(open) == 0 {
			continue
		}

		candidates, err := r.eligibleFor(ctx, class, day.MondayOfWeek(), open)
		if err != nil {
			return err
		}
		pick := ledger.Select(candidates, 1)
		if pick == nil {
			r.report.Unassigned = append(r.report.Unassigned, UnassignedRow{
				Date:   day.String(),
				Class:  class,
				Reason: "no eligible employee without blocking conflicts",
			})
			continue
		}
		ledger.Record(pick.ID, 1)
		r.emit(class, tpl, pick.ID, iv, fmt.Sprintf("auto-generated %s fill for %s", class, day))
	}
	return nil
}

// openIntervals drops intervals already covered by an existing
// non-cancelled shift of the class for the team, making re-runs
// idempotent.
func (r *generationRun) openIntervals(ctx context.Context, class domain.ShiftClass, intervals []interval) ([]interval, error) {
	if len(intervals) == 0 {
		return nil, nil
	}
	from := intervals[0].start
	to := intervals[len(intervals)-1].end
	existing, err := r.store.Shifts().ListRange(ctx, ShiftFilter{
		TeamID:   &r.req.TeamID,
		Class:    &class,
		From:     from,
		To:       to,
		Statuses: countedStatuses,
	})
	if err != nil {
		return nil, err
	}

	var open []interval
	for _, iv := range intervals {
		covered := false
		for i := range existing {
			if existing[i].OverlapsInterval(iv.start, iv.end) {
				covered = true
				break
			}
		}
		for i := range r.planned {
			if r.planned[i].Class == class && r.planned[i].OverlapsInterval(iv.start, iv.end) {
				covered = true
				break
			}
		}
		if !covered {
			open = append(open, iv)
		}
	}
	return open, nil
}

// pickWeekHolder selects one employee for the whole week's intervals.
func (r *generationRun) pickWeekHolder(ctx context.Context, class domain.ShiftClass, monday calendar.Date, intervals []interval, ledger *ClassLedger) (*domain.Employee, error) {
	candidates, err := r.eligibleFor(ctx, class, monday, intervals)
	if err != nil {
		return nil, err
	}
	pick := ledger.Select(candidates, DaysForAssignment(class))
	if pick != nil || !r.req.Force {
		return pick, nil
	}

	// Force: relax the blocking-overlap filter, keep the rest, and
	// record the conflicts we are writing through.
	relaxed, err := r.eligibleIgnoringOverlap(ctx, class, monday)
	if err != nil {
		return nil, err
	}
	pick = ledger.Select(relaxed, DaysForAssignment(class))
	if pick == nil {
		return nil, nil
	}
	for _, iv := range intervals {
		overlapping, err := r.overlapsFor(ctx, pick.ID, iv)
		if err != nil {
			return nil, err
		}
		for i := range overlapping {
			other := overlapping[i]
			r.report.Conflicts = append(r.report.Conflicts, Conflict{
				Kind:               ConflictDoubleBooking,
				Severity:           SeverityHigh,
				Message:            fmt.Sprintf("forced assignment overlaps shift %s", other.ID),
				EmployeeID:         pick.ID,
				ConflictingShiftID: &other.ID,
				OverlapHours:       overlapHours(iv.start, iv.end, other.Start, other.End),
			})
		}
	}
	return pick, nil
}

// eligibleFor returns team members who opted in to the class, do not
// already hold the complementary rotation this ISO week, and have no
// overlapping shift across any of the proposed intervals.
func (r *generationRun) eligibleFor(ctx context.Context, class domain.ShiftClass, monday calendar.Date, intervals []interval) ([]domain.Employee, error) {
	base, err := r.eligibleIgnoringOverlap(ctx, class, monday)
	if err != nil {
		return nil, err
	}

	var out []domain.Employee
	for i := range base {
		e := base[i]
		blocked := false
		for _, iv := range intervals {
			overlapping, err := r.overlapsFor(ctx, e.ID, iv)
			if err != nil {
				return nil, err
			}
			if len(overlapping) > 0 {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *generationRun) eligibleIgnoringOverlap(ctx context.Context, class domain.ShiftClass, monday calendar.Date) ([]domain.Employee, error) {
	members, err := r.store.Employees().ListByTeam(ctx, r.req.TeamID)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	holders, err := r.rotationHolders(ctx, monday)
	if err != nil {
		return nil, err
	}

	var out []domain.Employee
	for i := range members {
		e := members[i]
		if !e.Active || !e.AvailableFor(class) {
			continue
		}
		if other, held := holders[e.ID]; held && other != class &&
			(class == domain.ClassIncidents || class == domain.ClassWaakdienst) &&
			(other == domain.ClassIncidents || other == domain.ClassWaakdienst) {
			continue // no incidents + waakdienst in the same ISO week
		}
		// Daily classes also avoid the incidents holder of the week
		if class == domain.ClassChanges || class == domain.ClassProject {
			if other, held := holders[e.ID]; held && other == domain.ClassIncidents {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// rotationHolders maps employees to the rotation class they hold in the
// ISO week starting at monday, combining persisted shifts and in-run
// assignments.
func (r *generationRun) rotationHolders(ctx context.Context, monday calendar.Date) (map[string]domain.ShiftClass, error) {
	loc := r.orch.cal.Location()
	holders := map[string]domain.ShiftClass{}

	for _, class := range []domain.ShiftClass{domain.ClassIncidents, domain.ClassWaakdienst} {
		class := class
		existing, err := r.store.Shifts().ListRange(ctx, ShiftFilter{
			TeamID:   &r.req.TeamID,
			Class:    &class,
			From:     monday.Time(loc),
			To:       monday.AddDays(7).Time(loc),
			Statuses: countedStatuses,
		})
		if err != nil {
			return nil, err
		}
		for i := range existing {
			holders[existing[i].EmployeeID] = class
		}
	}

	if week, ok := r.weekHolders[weekKey(monday)]; ok {
		for class, emp := range week {
			holders[emp] = class
		}
	}
	return holders, nil
}

func (r *generationRun) overlapsFor(ctx context.Context, employeeID string, iv interval) ([]domain.Shift, error) {
	overlapping, err := r.store.Shifts().FindOverlapping(ctx, employeeID, iv.start, iv.end, nil)
	if err != nil {
		return nil, err
	}
	for i := range r.planned {
		p := &r.planned[i]
		if p.EmployeeID == employeeID && p.OverlapsInterval(iv.start, iv.end) {
			overlapping = append(overlapping, *p)
		}
	}
	return overlapping, nil
}

func (r *generationRun) emit(class domain.ShiftClass, tpl *domain.ShiftTemplate, employeeID string, iv interval, reason string) {
	teamID := r.req.TeamID
	shift := domain.Shift{
		ID:           uuid.New().String(),
		TemplateID:   tpl.ID,
		EmployeeID:   employeeID,
		TeamID:       &teamID,
		Class:        class,
		Start:        iv.start,
		End:          iv.end,
		Status:       domain.ShiftScheduled,
		AutoAssigned: true,
		Reason:       &reason,
		Version:      1,
	}
	r.planned = append(r.planned, shift)
	r.report.Created = append(r.report.Created, ShiftRef{
		TemplateID:    tpl.ID,
		EmployeeID:    employeeID,
		Class:         class,
		Start:         iv.start,
		End:           iv.end,
		DurationHours: shift.DurationHours(),
		Reason:        reason,
	})
}

func (o *Orchestrator) publishApplied(ctx context.Context, a *actor.Actor, req *GenerateRequest, report *ScheduleReport) {
	classes := make([]string, 0, len(req.Classes))
	for _, c := range req.Classes {
		classes = append(classes, string(c))
	}
	if err := o.events.Publish(ctx, messaging.EventScheduleApplied, messaging.ScheduleAppliedEvent{
		TeamID:      req.TeamID,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Classes:     classes,
		Created:     len(report.Created),
		Unassigned:  len(report.Unassigned),
		AppliedBy:   a.ID,
	}); err != nil {
		o.log.Warn().Err(err).Msg("failed to publish schedule applied event")
	}
	for _, ref := range report.Created {
		if err := o.events.Publish(ctx, messaging.EventShiftAssigned, messaging.ShiftAssignedEvent{
			ShiftID:    ref.ID,
			EmployeeID: ref.EmployeeID,
			Class:      string(ref.Class),
			Start:      ref.Start,
			End:        ref.End,
			Auto:       true,
		}); err != nil {
			o.log.Warn().Err(err).Msg("failed to publish shift assigned event")
		}
	}
}

// parseTimeOfDay parses "HH:MM", falling back to the given defaults.
func parseTimeOfDay(s string, defHour, defMin int) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return defHour, defMin
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return defHour, defMin
	}
	return h, m
}

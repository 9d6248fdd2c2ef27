package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

// exportColumns is the fixed export column order. Import consumes the
// same columns minus shift_id.
var exportColumns = []string{
	"shift_id", "template_name", "shift_class", "employee_identifier",
	"start", "end", "status", "duration_hours", "notes", "auto_assigned",
}

var importColumns = exportColumns[1:]

// RowError describes one rejected import row. Line numbers are 1-based
// and count the header as line 1.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportReport summarizes an import invocation. Imports are
// all-or-nothing: a single row error aborts every write.
type ImportReport struct {
	Rows    int        `json:"rows"`
	Created int        `json:"created"`
	Errors  []RowError `json:"errors"`
	DryRun  bool       `json:"dry_run"`
}

// CSVService exports and imports shifts in the fixed column format.
type CSVService struct {
	store Store
	clock calendar.Clock
	cal   *calendar.Calendar
	perms permissions.Checker
	log   *logger.Logger
}

// NewCSVService creates a CSV service.
func NewCSVService(store Store, clock calendar.Clock, cal *calendar.Calendar, perms permissions.Checker, log *logger.Logger) *CSVService {
	return &CSVService{store: store, clock: clock, cal: cal, perms: perms, log: log}
}

// Export writes the shifts matching the filter to w, ordered by start
// time then id. The employee identifier is the employee's email.
func (s *CSVService) Export(ctx context.Context, a *actor.Actor, filter ShiftFilter, w io.Writer) error {
	if !s.perms.Has(a, permissions.ExportShifts) {
		return errors.PermissionDenied(permissions.ExportShifts)
	}

	shifts, err := s.store.Shifts().ListRange(ctx, filter)
	if err != nil {
		return err
	}

	templates := map[string]string{}
	emails := map[string]string{}
	loc := s.cal.Location()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return errors.Internal("failed to write csv header")
	}
	for i := range shifts {
		shift := &shifts[i]
		tplName, ok := templates[shift.TemplateID]
		if !ok {
			tpl, err := s.store.Templates().GetByID(ctx, shift.TemplateID)
			if err != nil {
				return err
			}
			tplName = tpl.Name
			templates[shift.TemplateID] = tplName
		}
		email, ok := emails[shift.EmployeeID]
		if !ok {
			emp, err := s.store.Employees().GetByID(ctx, shift.EmployeeID)
			if err != nil {
				return err
			}
			email = emp.Email
			emails[shift.EmployeeID] = email
		}

		notes := ""
		if shift.Notes != nil {
			notes = *shift.Notes
		}
		record := []string{
			shift.ID,
			tplName,
			string(shift.Class),
			email,
			shift.Start.In(loc).Format(time.RFC3339),
			shift.End.In(loc).Format(time.RFC3339),
			string(shift.Status),
			strconv.FormatFloat(shift.DurationHours(), 'f', 2, 64),
			notes,
			strconv.FormatBool(shift.AutoAssigned),
		}
		if err := cw.Write(record); err != nil {
			return errors.Internal("failed to write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Internal("failed to flush csv output")
	}
	return nil
}

// Import reads shifts from r and creates them. Row errors are collected
// with 1-based line numbers; any error aborts all writes. With dryRun
// the rows are validated and counted but never written.
func (s *CSVService) Import(ctx context.Context, a *actor.Actor, r io.Reader, dryRun bool) (*ImportReport, error) {
	if !s.perms.Has(a, permissions.ImportShifts) {
		return nil, errors.PermissionDenied(permissions.ImportShifts)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(importColumns)

	header, err := cr.Read()
	if err != nil {
		return nil, errors.BadRequest("csv input is empty or malformed")
	}
	for i, col := range importColumns {
		if i >= len(header) || strings.TrimSpace(header[i]) != col {
			return nil, errors.BadRequest(fmt.Sprintf("csv header mismatch: expected %q", strings.Join(importColumns, ",")))
		}
	}

	report := &ImportReport{Errors: []RowError{}, DryRun: dryRun}
	var pending []domain.Shift
	var usage map[string]int

	err = s.store.Atomically(ctx, func(tx Store) error {
		employees, err := tx.Employees().ListActive(ctx)
		if err != nil {
			return err
		}
		byEmail := make(map[string]*domain.Employee, len(employees))
		for i := range employees {
			byEmail[strings.ToLower(employees[i].Email)] = &employees[i]
		}
		templates := map[string]*domain.ShiftTemplate{}
		usage = map[string]int{}

		line := 1 // header
		for {
			record, err := cr.Read()
			if err == io.EOF {
				break
			}
			line++
			if err != nil {
				report.Errors = append(report.Errors, RowError{Line: line, Message: "malformed csv row"})
				continue
			}
			report.Rows++

			shift, rowErr := s.parseRow(ctx, tx, record, byEmail, templates)
			if rowErr != "" {
				report.Errors = append(report.Errors, RowError{Line: line, Message: rowErr})
				continue
			}
			pending = append(pending, *shift)
			usage[shift.TemplateID]++
		}

		if len(report.Errors) > 0 || dryRun {
			return errAbortImport
		}
		for i := range pending {
			if err := tx.Shifts().Create(ctx, &pending[i]); err != nil {
				return err
			}
			report.Created++
		}
		for _, id := range sortedKeys(usage) {
			if err := tx.Templates().IncrementUsage(ctx, id, usage[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errAbortImport) {
		return nil, err
	}
	if dryRun && len(report.Errors) == 0 {
		report.Created = len(pending)
	}
	return report, nil
}

// errAbortImport rolls back the import transaction without surfacing an
// operational error; row errors live in the report.
var errAbortImport = fmt.Errorf("import aborted")

func (s *CSVService) parseRow(ctx context.Context, tx Store, record []string, byEmail map[string]*domain.Employee, templates map[string]*domain.ShiftTemplate) (*domain.Shift, string) {
	tplName := strings.TrimSpace(record[0])
	tpl, ok := templates[tplName]
	if !ok {
		loaded, err := tx.Templates().GetByName(ctx, tplName)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, fmt.Sprintf("unknown template %q", tplName)
			}
			return nil, fmt.Sprintf("failed to resolve template %q", tplName)
		}
		tpl = loaded
		templates[tplName] = tpl
	}

	class := domain.ShiftClass(strings.TrimSpace(record[1]))
	if !class.IsValid() {
		return nil, fmt.Sprintf("unknown shift class %q", record[1])
	}
	if class != tpl.Class {
		return nil, fmt.Sprintf("shift class %q does not match template %q", class, tplName)
	}

	employee, ok := byEmail[strings.ToLower(strings.TrimSpace(record[2]))]
	if !ok {
		return nil, fmt.Sprintf("unknown employee %q", record[2])
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(record[3]))
	if err != nil {
		return nil, fmt.Sprintf("invalid start %q", record[3])
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(record[4]))
	if err != nil {
		return nil, fmt.Sprintf("invalid end %q", record[4])
	}
	if !end.After(start) {
		return nil, "end must be after start"
	}

	status := domain.ShiftStatus(strings.TrimSpace(record[5]))
	if !status.IsValid() {
		return nil, fmt.Sprintf("unknown status %q", record[5])
	}

	// duration_hours is derived on export; a populated value only has
	// to be numeric, the stored duration always comes from start/end.
	if v := strings.TrimSpace(record[6]); v != "" {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Sprintf("invalid duration_hours %q", record[6])
		}
	}

	autoAssigned := false
	if v := strings.TrimSpace(record[8]); v != "" {
		autoAssigned, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Sprintf("invalid auto_assigned %q", record[8])
		}
	}

	shift := &domain.Shift{
		ID:           uuid.New().String(),
		TemplateID:   tpl.ID,
		EmployeeID:   employee.ID,
		TeamID:       employee.TeamID,
		Class:        class,
		Start:        start,
		End:          end,
		Status:       status,
		AutoAssigned: autoAssigned,
		Version:      1,
	}
	if notes := strings.TrimSpace(record[7]); notes != "" {
		shift.Notes = &notes
	}
	return shift, ""
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

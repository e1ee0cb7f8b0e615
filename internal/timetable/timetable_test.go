package timetable

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"campusmark/internal/admission"
)

type fakeSchedule struct {
	entries []Entry
	err     error
}

func (s *fakeSchedule) EntriesAt(_ context.Context, day string, slot int) ([]Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Entry
	for _, e := range s.entries {
		if e.Day == day && e.Slot == slot {
			out = append(out, e)
		}
	}
	return out, nil
}

func sectionA() admission.Section {
	return admission.Section{Branch: "COMP", Year: 3, Division: "A"}
}

func sectionB() admission.Section {
	return admission.Section{Branch: "MECH", Year: 2, Division: "B"}
}

func existingEntry() Entry {
	return Entry{
		ID:           "tt-1",
		CourseCode:   "CS301",
		Section:      sectionA(),
		Day:          "Monday",
		Slot:         3,
		Room:         "301",
		InstructorID: "t-1",
		StartTime:    "11:00",
		EndTime:      "12:00",
	}
}

func TestNoClash(t *testing.T) {
	chk := NewChecker(&fakeSchedule{entries: []Entry{existingEntry()}}, zap.NewNop())

	proposed := Entry{
		CourseCode:   "ME201",
		Section:      sectionB(),
		Day:          "Monday",
		Slot:         3,
		Room:         "107",
		InstructorID: "t-2",
	}
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Clash || len(report.Reasons) != 0 {
		t.Errorf("expected clean report, got %+v", report)
	}
}

func TestRoomClash(t *testing.T) {
	chk := NewChecker(&fakeSchedule{entries: []Entry{existingEntry()}}, zap.NewNop())

	proposed := Entry{
		CourseCode:   "ME201",
		Section:      sectionB(),
		Day:          "Monday",
		Slot:         3,
		Room:         "301", // taken by CS301
		InstructorID: "t-2",
	}
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Clash {
		t.Fatal("expected clash")
	}
	if len(report.Reasons) != 1 || report.Reasons[0] != "Room already occupied at this time" {
		t.Errorf("reasons = %v", report.Reasons)
	}
}

func TestRoomAndInstructorClashBothReported(t *testing.T) {
	chk := NewChecker(&fakeSchedule{entries: []Entry{existingEntry()}}, zap.NewNop())

	proposed := Entry{
		CourseCode:   "ME201",
		Section:      sectionB(),
		Day:          "Monday",
		Slot:         3,
		Room:         "301",
		InstructorID: "t-1",
	}
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.Reasons) != 2 {
		t.Fatalf("expected both reasons, got %v", report.Reasons)
	}
	if report.Reasons[0] != "Room already occupied at this time" ||
		report.Reasons[1] != "Instructor already assigned at this time" {
		t.Errorf("reasons = %v", report.Reasons)
	}
}

func TestSectionClashRegardlessOfRoom(t *testing.T) {
	chk := NewChecker(&fakeSchedule{entries: []Entry{existingEntry()}}, zap.NewNop())

	// Same section, different room and instructor: still blocked.
	proposed := Entry{
		CourseCode:   "CS305",
		Section:      sectionA(),
		Day:          "Monday",
		Slot:         3,
		Room:         "415",
		InstructorID: "t-7",
	}
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.Reasons) != 1 || report.Reasons[0] != "Section already has an entry at this time" {
		t.Errorf("reasons = %v", report.Reasons)
	}
}

func TestDifferentSlotNoClash(t *testing.T) {
	chk := NewChecker(&fakeSchedule{entries: []Entry{existingEntry()}}, zap.NewNop())

	proposed := existingEntry()
	proposed.ID = ""
	proposed.Slot = 4
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Clash {
		t.Errorf("different slot must not clash: %+v", report)
	}
}

func TestBreakExempt(t *testing.T) {
	store := &fakeSchedule{entries: []Entry{existingEntry()}}
	chk := NewChecker(store, zap.NewNop())

	// Collides on (room, day, slot) but is a break: never evaluated.
	proposed := Entry{
		CourseCode: BreakCourseCode,
		Section:    sectionA(),
		Day:        "Monday",
		Slot:       3,
		Room:       "301",
	}
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Clash {
		t.Errorf("break entries are exempt, got %+v", report)
	}
}

func TestExistingBreakBlocksSection(t *testing.T) {
	brk := Entry{
		ID:         "tt-brk",
		CourseCode: BreakCourseCode,
		Section:    sectionA(),
		Day:        "Monday",
		Slot:       5,
	}
	chk := NewChecker(&fakeSchedule{entries: []Entry{brk}}, zap.NewNop())

	proposed := Entry{
		CourseCode:   "CS301",
		Section:      sectionA(),
		Day:          "Monday",
		Slot:         5,
		Room:         "301",
		InstructorID: "t-1",
	}
	report, err := chk.Check(context.Background(), proposed)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.Reasons) != 1 || report.Reasons[0] != "Section already has an entry at this time" {
		t.Errorf("a scheduled break still occupies the section's slot: %v", report.Reasons)
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	chk := NewChecker(&fakeSchedule{err: errors.New("timeout")}, zap.NewNop())

	_, err := chk.Check(context.Background(), existingEntry())
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}

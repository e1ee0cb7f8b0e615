// Package timetable guards schedule consistency when lectures are created.
package timetable

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campusmark/internal/admission"
)

// BreakCourseCode marks a placeholder entry that blocks a slot on the grid
// but is exempt from clash checking.
const BreakCourseCode = "BREAK"

// Entry is one proposed or existing schedule slot. It reuses the lecture
// shape the admission engine reads.
type Entry = admission.Lecture

// IsBreak reports whether the entry is a break placeholder.
func IsBreak(e Entry) bool { return e.CourseCode == BreakCourseCode }

// ClashReport is the outcome of a conflict check. Reasons holds one
// human-readable line per triggered predicate, in room/instructor/section
// order.
type ClashReport struct {
	Clash   bool
	Reasons []string
}

// Store lists the existing schedule entries occupying a (day, slot) pair.
type Store interface {
	EntriesAt(ctx context.Context, day string, slot int) ([]Entry, error)
}

// Checker detects room, instructor, and section double-booking.
type Checker struct {
	store  Store
	logger *zap.Logger
}

// NewChecker wires a checker to the schedule store.
func NewChecker(store Store, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{store: store, logger: logger}
}

// Check evaluates the proposed entry against everything already scheduled
// at the same day and slot. All three predicates are evaluated even after
// one triggers, so the caller sees every reason at once. Break entries are
// never checked.
func (c *Checker) Check(ctx context.Context, proposed Entry) (ClashReport, error) {
	if IsBreak(proposed) {
		return ClashReport{}, nil
	}

	existing, err := c.store.EntriesAt(ctx, proposed.Day, proposed.Slot)
	if err != nil {
		return ClashReport{}, fmt.Errorf("list entries at %s slot %d: %w", proposed.Day, proposed.Slot, err)
	}

	var roomTaken, instructorTaken, sectionTaken bool
	for _, e := range existing {
		if e.Room == proposed.Room {
			roomTaken = true
		}
		if e.InstructorID == proposed.InstructorID {
			instructorTaken = true
		}
		if e.Section == proposed.Section {
			// Any entry in the slot blocks the section, whatever its
			// room or instructor.
			sectionTaken = true
		}
	}

	var report ClashReport
	if roomTaken {
		report.Reasons = append(report.Reasons, "Room already occupied at this time")
	}
	if instructorTaken {
		report.Reasons = append(report.Reasons, "Instructor already assigned at this time")
	}
	if sectionTaken {
		report.Reasons = append(report.Reasons, "Section already has an entry at this time")
	}
	report.Clash = len(report.Reasons) > 0

	if report.Clash {
		c.logger.Info("timetable clash",
			zap.String("day", proposed.Day),
			zap.Int("slot", proposed.Slot),
			zap.String("room", proposed.Room),
			zap.String("instructor", proposed.InstructorID),
			zap.Strings("reasons", report.Reasons))
	}
	return report, nil
}

// Package records is the Postgres persistence layer behind the admission
// engine and the timetable checker.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusmark/internal/admission"
	"campusmark/internal/timetable"
)

// Repository persists campus data in Postgres. It satisfies
// admission.Store and timetable.Store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// LectureByID returns the lecture or (nil, nil) when the id is unknown.
func (r *Repository) LectureByID(ctx context.Context, id string) (*admission.Lecture, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_code, branch, year, division, day, slot, room, instructor_id, start_time, end_time
		FROM lectures WHERE id = $1
	`, id)
	var lec admission.Lecture
	err := row.Scan(&lec.ID, &lec.CourseCode, &lec.Section.Branch, &lec.Section.Year, &lec.Section.Division,
		&lec.Day, &lec.Slot, &lec.Room, &lec.InstructorID, &lec.StartTime, &lec.EndTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &lec, nil
}

// Locations lists authorized geofence centers in storage order. The engine
// matches the first one that covers the reported point, so no ORDER BY is
// applied beyond insertion order.
func (r *Repository) Locations(ctx context.Context) ([]admission.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, radius_m FROM locations ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []admission.Location
	for rows.Next() {
		var loc admission.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude, &loc.RadiusMeters); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// Networks lists registered campus access points.
func (r *Repository) Networks(ctx context.Context) ([]admission.Network, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, bssid, ssid FROM networks ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []admission.Network
	for rows.Next() {
		var n admission.Network
		if err := rows.Scan(&n.ID, &n.BSSID, &n.SSID); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// InstructorDevices lists the Bluetooth identifiers registered on
// instructor accounts.
func (r *Repository) InstructorDevices(ctx context.Context) ([]admission.InstructorDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, bluetooth_id FROM users
		WHERE role = 'Instructor' AND bluetooth_id <> ''
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []admission.InstructorDevice
	for rows.Next() {
		var d admission.InstructorDevice
		if err := rows.Scan(&d.InstructorID, &d.Name, &d.BluetoothID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// HasRecord reports whether attendance already exists for the pair.
func (r *Repository) HasRecord(ctx context.Context, studentID, lectureID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM attendance_records WHERE student_id = $1 AND lecture_id = $2
	`, studentID, lectureID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertRecord writes one attendance record. The composite uniqueness
// constraint on (student_id, lecture_id) closes the window between the
// engine's duplicate check and this insert: when a concurrent submission
// got there first, the insert affects no rows and ErrDuplicateRecord is
// returned instead of a second record appearing.
func (r *Repository) InsertRecord(ctx context.Context, rec admission.Record) (admission.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, student_id, lecture_id, course_code, status, latitude, longitude,
			 bssid, bluetooth_id, location_name, network_name, instructor_name, method, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (student_id, lecture_id) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.LectureID, rec.CourseCode, rec.Status, rec.Latitude, rec.Longitude,
		rec.BSSID, rec.BluetoothID, rec.LocationName, rec.NetworkName, rec.InstructorName, rec.Method, rec.MarkedAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return admission.Record{}, admission.ErrDuplicateRecord
		}
		return admission.Record{}, err
	}
	return rec, nil
}

// ListRecords returns a student's attendance, newest first.
func (r *Repository) ListRecords(ctx context.Context, studentID string, limit, offset int) ([]admission.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, lecture_id, course_code, status, latitude, longitude,
		       bssid, bluetooth_id, location_name, network_name, instructor_name, method, marked_at, created_at
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY marked_at DESC
		LIMIT $2 OFFSET $3
	`, studentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []admission.Record
	for rows.Next() {
		var rec admission.Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.LectureID, &rec.CourseCode, &rec.Status,
			&rec.Latitude, &rec.Longitude, &rec.BSSID, &rec.BluetoothID,
			&rec.LocationName, &rec.NetworkName, &rec.InstructorName, &rec.Method,
			&rec.MarkedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AttendanceCounts returns how many of the student's records are Present
// and how many exist in total. The worker turns this into the cached
// dashboard percentage.
func (r *Repository) AttendanceCounts(ctx context.Context, studentID string) (present, total int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FILTER (WHERE status = 'Present'), COUNT(1)
		FROM attendance_records WHERE student_id = $1
	`, studentID).Scan(&present, &total)
	return present, total, err
}

// EntriesAt lists every schedule entry occupying (day, slot).
func (r *Repository) EntriesAt(ctx context.Context, day string, slot int) ([]timetable.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_code, branch, year, division, day, slot, room, instructor_id, start_time, end_time
		FROM lectures WHERE day = $1 AND slot = $2
	`, day, slot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EntriesForSection lists a section's full weekly grid.
func (r *Repository) EntriesForSection(ctx context.Context, sec admission.Section) ([]timetable.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_code, branch, year, division, day, slot, room, instructor_id, start_time, end_time
		FROM lectures WHERE branch = $1 AND year = $2 AND division = $3
		ORDER BY day, slot
	`, sec.Branch, sec.Year, sec.Division)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// InsertEntry persists a schedule entry after the clash check passed.
func (r *Repository) InsertEntry(ctx context.Context, e timetable.Entry) (timetable.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lectures (id, course_code, branch, year, division, day, slot, room, instructor_id, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.CourseCode, e.Section.Branch, e.Section.Year, e.Section.Division,
		e.Day, e.Slot, e.Room, e.InstructorID, e.StartTime, e.EndTime)
	if err != nil {
		return timetable.Entry{}, err
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]timetable.Entry, error) {
	var out []timetable.Entry
	for rows.Next() {
		var e timetable.Entry
		if err := rows.Scan(&e.ID, &e.CourseCode, &e.Section.Branch, &e.Section.Year, &e.Section.Division,
			&e.Day, &e.Slot, &e.Room, &e.InstructorID, &e.StartTime, &e.EndTime); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FaceEncoding returns the student's enrolled feature vector, or
// (nil, nil) when none is enrolled. Encodings are stored as JSON arrays.
func (r *Repository) FaceEncoding(ctx context.Context, studentID string) ([]float64, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT encoding FROM face_encodings WHERE student_id = $1
	`, studentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var enc []float64
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("decode face encoding for %s: %w", studentID, err)
	}
	return enc, nil
}

// SaveFaceEncoding creates or replaces the student's feature vector.
func (r *Repository) SaveFaceEncoding(ctx context.Context, studentID string, enc []float64) error {
	raw, err := json.Marshal(enc)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO face_encodings (student_id, encoding)
		VALUES ($1, $2)
		ON CONFLICT (student_id) DO UPDATE SET
			encoding = EXCLUDED.encoding,
			updated_at = NOW()
	`, studentID, raw)
	return err
}

// EnsureUser creates the user row if it does not exist yet.
func (r *Repository) EnsureUser(ctx context.Context, id, name, role string) error {
	if id == "" {
		return errors.New("user id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, name, role)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

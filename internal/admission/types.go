package admission

import (
	"context"
	"errors"
	"time"
)

// Reason identifies which gate denied an attendance request. It is part of
// the API response and must stay stable.
type Reason string

const (
	ReasonNotFound   Reason = "not_found"
	ReasonTimeWindow Reason = "time_window"
	ReasonFace       Reason = "face_expired_or_missing"
	ReasonGeofence   Reason = "geofence"
	ReasonNetwork    Reason = "network"
	ReasonDevice     Reason = "device"
	ReasonDuplicate  Reason = "duplicate"
)

// StatusPresent is the only status this engine ever writes.
const StatusPresent = "Present"

// ValidationMethod records which factors were checked for an admitted record.
const ValidationMethod = "GPS+WiFi+Bluetooth+Face"

var (
	// ErrInvalidLectureTime marks a lecture whose stored start/end time does
	// not parse. This is a data-integrity failure, not a deny.
	ErrInvalidLectureTime = errors.New("invalid lecture time format")

	// ErrDuplicateRecord is returned by Store.InsertRecord when the
	// (student, lecture) uniqueness constraint rejects the insert.
	ErrDuplicateRecord = errors.New("attendance already recorded")
)

func isDuplicate(err error) bool { return errors.Is(err, ErrDuplicateRecord) }

// Section identifies the class a lecture belongs to.
type Section struct {
	Branch   string
	Year     int
	Division string
}

// Lecture is one timetable slot. Start and end are wall-clock "HH:MM"
// strings; the scheduling admin owns them, the engine only reads them.
type Lecture struct {
	ID           string
	CourseCode   string
	Section      Section
	Day          string
	Slot         int
	Room         string
	InstructorID string
	StartTime    string
	EndTime      string
}

// Location is an authorized geofence center. A RadiusMeters of zero means
// "use the configured default".
type Location struct {
	ID           string
	Name         string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// Network is a registered campus Wi-Fi access point. BSSID is stored raw
// and normalized at comparison time.
type Network struct {
	ID    string
	BSSID string
	SSID  string
}

// InstructorDevice is the Bluetooth identifier registered for an
// instructor account.
type InstructorDevice struct {
	InstructorID string
	Name         string
	BluetoothID  string
}

// Record is one admitted attendance, including the evidence captured at
// admission time. Records are never updated by the engine.
type Record struct {
	ID             string
	StudentID      string
	LectureID      string
	CourseCode     string
	Status         string
	Latitude       float64
	Longitude      float64
	BSSID          string
	BluetoothID    string
	LocationName   string
	NetworkName    string
	InstructorName string
	Method         string
	MarkedAt       time.Time
	CreatedAt      time.Time
}

// Store is the persistence collaborator the engine depends on. Lookups
// return (nil, nil) for "not found" so callers can distinguish a missing
// row from a store failure.
type Store interface {
	LectureByID(ctx context.Context, id string) (*Lecture, error)
	Locations(ctx context.Context) ([]Location, error)
	Networks(ctx context.Context) ([]Network, error)
	InstructorDevices(ctx context.Context) ([]InstructorDevice, error)
	HasRecord(ctx context.Context, studentID, lectureID string) (bool, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
}

// AssertionConsumer reads and invalidates the session's face-verification
// assertion. Consume must remove the assertion unconditionally: once read,
// it is spent whether or not the admission goes through.
type AssertionConsumer interface {
	Consume(ctx context.Context, sessionID string) (issuedAt time.Time, ok bool, err error)
}

// Request carries everything one mark-attendance attempt reports, with
// identity already resolved by the caller's auth layer.
type Request struct {
	StudentID   string
	SessionID   string
	LectureID   string
	Latitude    float64
	Longitude   float64
	NetworkID   string // reported BSSID, may be empty
	BluetoothID string // reported instructor device address, may be empty
}

// Result enumerates every check's outcome plus the evidence labels the
// caller shows to the user. Reason is set only on a deny.
type Result struct {
	Admitted           bool
	Reason             Reason
	TimeValidated      bool
	FaceVerified       bool
	LocationValidated  bool
	WifiValidated      bool
	BluetoothValidated bool
	LocationName       string
	NetworkName        string
	InstructorName     string
	RecordID           string
}

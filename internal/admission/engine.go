// Package admission decides whether a single attendance-marking request is
// accepted. Validation runs in a fixed order and stops at the first failing
// gate; each gate carries its own externally visible reason.
package admission

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campusmark/internal/geo"
	"campusmark/internal/hwaddr"
)

const lectureTimeLayout = "15:04"

// Config tunes the engine. Zero values fall back to the deployment
// defaults (100 m radius, 5 minute assertion TTL).
type Config struct {
	DefaultRadiusMeters float64
	AssertionTTL        time.Duration
}

// Engine orchestrates the admission gates against the record store and the
// session's face-verification assertion.
type Engine struct {
	store         Store
	assertions    AssertionConsumer
	defaultRadius float64
	assertionTTL  time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewEngine wires an engine to its collaborators.
func NewEngine(store Store, assertions AssertionConsumer, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DefaultRadiusMeters <= 0 {
		cfg.DefaultRadiusMeters = 100
	}
	if cfg.AssertionTTL <= 0 {
		cfg.AssertionTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:         store,
		assertions:    assertions,
		defaultRadius: cfg.DefaultRadiusMeters,
		assertionTTL:  cfg.AssertionTTL,
		logger:        logger,
		now:           time.Now,
	}
}

// WithinWindow reports whether now falls inside the lecture's scheduled
// span, inclusive on both ends. The stored HH:MM times are combined with
// now's date, so lectures crossing midnight are not representable; that
// limitation is deliberate and matches how schedules are entered.
func WithinWindow(start, end string, now time.Time) (bool, error) {
	st, err := time.Parse(lectureTimeLayout, start)
	if err != nil {
		return false, fmt.Errorf("%w: start %q", ErrInvalidLectureTime, start)
	}
	et, err := time.Parse(lectureTimeLayout, end)
	if err != nil {
		return false, fmt.Errorf("%w: end %q", ErrInvalidLectureTime, end)
	}
	s := time.Date(now.Year(), now.Month(), now.Day(), st.Hour(), st.Minute(), 0, 0, now.Location())
	e := time.Date(now.Year(), now.Month(), now.Day(), et.Hour(), et.Minute(), 0, 0, now.Location())
	return !now.Before(s) && !now.After(e), nil
}

// Admit evaluates one request. Gate order:
//
//	LectureExists → TimeWindow → FaceGate → Geofence → Network → Device → NotDuplicate → Admit
//
// A deny is a normal Result with a Reason; a returned error means a
// collaborator failed or stored data is malformed, and the caller must not
// treat it as either an admit or a deny.
func (e *Engine) Admit(ctx context.Context, req Request) (Result, error) {
	var res Result

	lec, err := e.store.LectureByID(ctx, req.LectureID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch lecture %s: %w", req.LectureID, err)
	}
	if lec == nil {
		res.Reason = ReasonNotFound
		return res, nil
	}

	now := e.now()
	within, err := WithinWindow(lec.StartTime, lec.EndTime, now)
	if err != nil {
		return Result{}, fmt.Errorf("lecture %s: %w", lec.ID, err)
	}
	if !within {
		res.Reason = ReasonTimeWindow
		return res, nil
	}
	res.TimeValidated = true

	// The assertion is spent by this read no matter what the remaining
	// gates decide, so a verified face cannot be replayed across two
	// submissions from the same session.
	issuedAt, ok, err := e.assertions.Consume(ctx, req.SessionID)
	if err != nil {
		return Result{}, fmt.Errorf("consume face assertion: %w", err)
	}
	if !ok || now.Sub(issuedAt) > e.assertionTTL {
		res.Reason = ReasonFace
		return res, nil
	}
	res.FaceVerified = true

	locations, err := e.store.Locations(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list locations: %w", err)
	}
	for _, loc := range locations {
		radius := loc.RadiusMeters
		if radius <= 0 {
			radius = e.defaultRadius
		}
		dist := geo.DistanceMeters(req.Latitude, req.Longitude, loc.Latitude, loc.Longitude)
		e.logger.Debug("geofence check",
			zap.String("student", req.StudentID),
			zap.String("location", loc.Name),
			zap.Float64("distance_m", dist),
			zap.Float64("radius_m", radius))
		if dist <= radius {
			res.LocationValidated = true
			res.LocationName = loc.Name
			break
		}
	}
	if !res.LocationValidated {
		e.logger.Warn("geofence deny",
			zap.String("student", req.StudentID),
			zap.Float64("lat", req.Latitude),
			zap.Float64("lon", req.Longitude))
		res.Reason = ReasonGeofence
		return res, nil
	}

	if req.NetworkID != "" {
		reported := hwaddr.Normalize(req.NetworkID)
		networks, err := e.store.Networks(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("list networks: %w", err)
		}
		for _, n := range networks {
			if stored := hwaddr.Normalize(n.BSSID); stored != "" && stored == reported {
				res.WifiValidated = true
				res.NetworkName = n.SSID
				break
			}
		}
	}
	if !res.WifiValidated {
		e.logger.Warn("network deny",
			zap.String("student", req.StudentID),
			zap.String("reported_bssid", hwaddr.Normalize(req.NetworkID)))
		res.Reason = ReasonNetwork
		return res, nil
	}

	if req.BluetoothID != "" {
		reported := hwaddr.Normalize(req.BluetoothID)
		devices, err := e.store.InstructorDevices(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("list instructor devices: %w", err)
		}
		for _, d := range devices {
			if stored := hwaddr.Normalize(d.BluetoothID); stored != "" && stored == reported {
				res.BluetoothValidated = true
				res.InstructorName = d.Name
				break
			}
		}
	}
	if !res.BluetoothValidated {
		e.logger.Warn("device deny",
			zap.String("student", req.StudentID),
			zap.String("reported_device", hwaddr.Normalize(req.BluetoothID)))
		res.Reason = ReasonDevice
		return res, nil
	}

	// Runs last so a duplicate attempt learns nothing about the other
	// gates. The read is not atomic with the insert below; the store's
	// uniqueness constraint is the real guard (see InsertRecord).
	exists, err := e.store.HasRecord(ctx, req.StudentID, req.LectureID)
	if err != nil {
		return Result{}, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		res.Reason = ReasonDuplicate
		return res, nil
	}

	rec := Record{
		StudentID:      req.StudentID,
		LectureID:      lec.ID,
		CourseCode:     lec.CourseCode,
		Status:         StatusPresent,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		BSSID:          req.NetworkID,
		BluetoothID:    req.BluetoothID,
		LocationName:   res.LocationName,
		NetworkName:    res.NetworkName,
		InstructorName: res.InstructorName,
		Method:         ValidationMethod,
		MarkedAt:       now,
	}
	saved, err := e.store.InsertRecord(ctx, rec)
	if err != nil {
		if isDuplicate(err) {
			// Lost the race against a concurrent submission for the
			// same (student, lecture) pair.
			res.Reason = ReasonDuplicate
			return res, nil
		}
		return Result{}, fmt.Errorf("insert record: %w", err)
	}

	res.Admitted = true
	res.RecordID = saved.ID
	e.logger.Info("attendance admitted",
		zap.String("student", req.StudentID),
		zap.String("lecture", lec.ID),
		zap.String("course", lec.CourseCode),
		zap.String("location", res.LocationName),
		zap.String("network", res.NetworkName),
		zap.String("instructor", res.InstructorName))
	return res, nil
}

// Package metrics exposes the Prometheus counters the API increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdmissionsTotal counts admission decisions. The outcome label is
// "admitted", "error", or the deny reason.
var AdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "campusmark_admissions_total",
	Help: "Attendance admission decisions by outcome.",
}, []string{"outcome"})

// ClashRejectionsTotal counts timetable entries rejected by the conflict
// checker.
var ClashRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "campusmark_timetable_clash_rejections_total",
	Help: "Timetable entries rejected because of a scheduling clash.",
})

// FaceVerificationsTotal counts face verification attempts by result
// ("match", "no_match", "error").
var FaceVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "campusmark_face_verifications_total",
	Help: "Face verification attempts by result.",
}, []string{"result"})

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DrawResolutions counts resolve calls by outcome kind
	DrawResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite2win_draw_resolutions_total",
			Help: "Draw resolution attempts by outcome",
		},
		[]string{"outcome"}, // winner, no_participants, no_members, already_closed, ...
	)

	// DrawResolveDuration tracks the latency of a full resolution
	DrawResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "invite2win_draw_resolve_duration_seconds",
			Help: "Duration of draw resolution in seconds",
			Buckets: []float64{
				0.01, // 10ms
				0.05, // 50ms
				0.1,  // 100ms
				0.5,  // 500ms
				1.0,  // 1s
				5.0,  // 5s
				15.0, // 15s
				60.0, // 1m
			},
		},
	)

	// MembershipChecks counts oracle lookups by result
	MembershipChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite2win_membership_checks_total",
			Help: "Channel membership lookups by result",
		},
		[]string{"result"}, // member, non_member, error
	)

	// ReferralRegistrations counts /start registrations by result
	ReferralRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite2win_referral_registrations_total",
			Help: "Participant registrations by result",
		},
		[]string{"result"},
	)

	SchedulerPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invite2win_scheduler_passes_total",
			Help: "Completed scheduler passes",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invite2win_notification_failures_total",
			Help: "Outcome notifications that could not be delivered",
		},
	)
)

// Membership check results.
const (
	ResultMember    = "member"
	ResultNonMember = "non_member"
	ResultError     = "error"
)

// RecordResolution records one resolve call.
func RecordResolution(outcome string, seconds float64) {
	DrawResolutions.WithLabelValues(outcome).Inc()
	DrawResolveDuration.Observe(seconds)
}

// RecordMembershipCheck records one oracle lookup.
func RecordMembershipCheck(result string) {
	MembershipChecks.WithLabelValues(result).Inc()
}

// RecordRegistration records one registration result.
func RecordRegistration(result string) {
	ReferralRegistrations.WithLabelValues(result).Inc()
}

// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DraftSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_draft_saves_total",
			Help: "Total number of draft save attempts by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_submissions_total",
			Help: "Total number of submission pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_stage_failures_total",
			Help: "Total number of submission pipeline stage failures",
		},
		[]string{"stage", "kind"},
	)

	ResumeOffers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_resume_offers_total",
			Help: "Total number of resume offers by the choice taken",
		},
		[]string{"choice"},
	)

	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "wizard_submit_duration_seconds",
			Help: "Duration of the submission pipeline in seconds",
		},
	)
)

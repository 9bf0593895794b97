package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersScreenedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "subscribers_screened_total",
			Help:      "Total number of subscribers screened by the eligibility filter.",
		},
		[]string{"outcome"}, // "blocked" or "eligible"
	)

	importRecordsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "import_records_total",
			Help:      "Total number of import records produced, per bucket.",
		},
		[]string{"bucket"},
	)

	deviceCreateCallsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "device_create_calls_total",
			Help:      "Total number of device create-or-fetch calls, per result.",
		},
		[]string{"result"}, // "success", "empty", "error"
	)
)

// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "articles_ingested_total",
		Help:      "Articles accepted into the pipeline.",
	})

	ArticlesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "articles_discarded_total",
		Help:      "Articles transitioned into the discarded status.",
	})

	DiscardsByReason = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "discards_by_reason_total",
		Help:      "Gate discards broken down by rejection reason.",
	}, []string{"reason"})

	SuppressedShortCircuits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "suppressed_short_circuits_total",
		Help:      "Ingest attempts short-circuited by the suppression ledger.",
	})

	DuplicatesFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "duplicates_flagged_total",
		Help:      "Duplicate pairs recorded for review.",
	})

	QueueItemsPopulated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "queue_items_populated_total",
		Help:      "Generation queue rows created from processed articles.",
	})

	ReactivationsPrevented = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "reactivations_prevented_total",
		Help:      "Status changes out of discarded vetoed by the suppression ledger.",
	})

	StalledQueueResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storymill",
		Name:      "stalled_queue_resets_total",
		Help:      "Stuck processing queue items returned to pending or failed by the sweeper.",
	})
)

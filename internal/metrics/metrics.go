// Package metrics exposes Prometheus instrumentation for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BalanceRecomputes counts full balance recomputations per group.
	BalanceRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_balance_recomputes_total",
		Help: "Number of full balance recomputations.",
	})

	// BalanceCacheHits counts balance reads served from the cache.
	BalanceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_balance_cache_hits_total",
		Help: "Number of balance reads served from the cache.",
	})

	// BalanceCacheInvalidations counts cache drops triggered by ledger writes.
	BalanceCacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_balance_cache_invalidations_total",
		Help: "Number of balance cache invalidations.",
	})

	// WriteConflicts counts ledger writes rejected by the version check.
	WriteConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_write_conflicts_total",
		Help: "Number of ledger writes rejected by optimistic concurrency.",
	})

	// TransactionsWritten counts committed ledger writes by operation.
	TransactionsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_transactions_written_total",
		Help: "Number of committed ledger writes.",
	}, []string{"op"})

	// GroupsAutoArchived counts groups closed by the auto-archive sweep.
	GroupsAutoArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_groups_auto_archived_total",
		Help: "Number of groups archived by the periodic sweep.",
	})
)

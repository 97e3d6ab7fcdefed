package redkv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "redkv"

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "commands_total",
		Help:      "Commands processed, labeled by command name and outcome.",
	}, []string{"command", "outcome"})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "connections_active",
		Help:      "Number of currently open client connections.",
	})

	connectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "connections_rejected_total",
		Help:      "Connections rejected because MaxConnections was reached.",
	})

	rdbKeysLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rdb_keys_loaded",
		Help:      "Keys loaded from the RDB snapshot at startup.",
	})
)

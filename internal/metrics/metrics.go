// Package metrics turns keyspace mutation events into Prometheus
// counters/gauges, the same Observer fan-out role the blocking coordinator
// and transaction machine fill, but for an external embedder's scrape
// endpoint rather than for keyspace semantics. No HTTP server is started
// here; the embedder decides how (and whether) the registry is served.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector is a store.Observer backed by a dedicated Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	dataAdded      prometheus.Counter
	dataRemoved    prometheus.Counter
	keyModified    prometheus.Counter
	storeCleared   prometheus.Counter
	expiredRemoved prometheus.Counter
	keyspaceSize   prometheus.Gauge
}

// New builds a Collector with its own registry, so an embedder chooses how
// (or whether) to expose it rather than this package reaching for a global
// default registry or an HTTP listener.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		dataAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redlet_keys_added_total",
			Help: "Total number of DataAdded events: one per key created, plus one per LPUSH/RPUSH call.",
		}),
		dataRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redlet_keys_removed_total",
			Help: "Total number of keys removed from the keyspace (explicit deletes + expirations).",
		}),
		keyModified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redlet_key_modifications_total",
			Help: "Total number of KeyModified events (mutating operations, including ones that create the key).",
		}),
		storeCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redlet_flushes_total",
			Help: "Total number of FLUSHALL operations.",
		}),
		expiredRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redlet_expired_keys_total",
			Help: "Total number of keys removed by TTL expiry.",
		}),
		keyspaceSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redlet_keyspace_size",
			Help: "Best-effort live count of DataAdded minus DataRemoved events, reset to 0 when the store is cleared.",
		}),
	}
	reg.MustRegister(c.dataAdded, c.dataRemoved, c.keyModified, c.storeCleared, c.expiredRemoved, c.keyspaceSize)
	return c
}

// Registry exposes the Prometheus registry for an embedder to serve
// however it likes (redlet itself never starts an HTTP listener for it).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) DataAdded(key string) {
	c.dataAdded.Inc()
	c.keyspaceSize.Inc()
}

func (c *Collector) DataRemoved(key string) {
	c.dataRemoved.Inc()
	c.keyspaceSize.Dec()
}

func (c *Collector) KeyModified(key string) {
	c.keyModified.Inc()
}

func (c *Collector) StoreCleared() {
	c.storeCleared.Inc()
	c.keyspaceSize.Set(0)
}

func (c *Collector) ExpiredKeysRemoved(keys []string) {
	if len(keys) == 0 {
		return
	}
	c.expiredRemoved.Add(float64(len(keys)))
}

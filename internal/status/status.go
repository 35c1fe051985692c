// Package status materialises the read-only snapshot the core exposes
// to the admin layer, both as a plain struct for a JSON endpoint and as
// Prometheus gauges/counters.
package status

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/boot"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/breaker"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/gate"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/orchestrator"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/wal"
)

// ProviderSnapshot is the per-provider slice of the status surface.
type ProviderSnapshot struct {
	Provider         string    `json:"provider"`
	CircuitState     string    `json:"circuit_state"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	InflightPermits  int64     `json:"inflight_permits"`
	OpenUntil        time.Time `json:"open_until,omitempty"`
}

// Snapshot is the full read-only admin status view.
type Snapshot struct {
	Providers     []ProviderSnapshot `json:"providers"`
	BufferLengths map[string]int     `json:"buffer_lengths"`
	WALSizeBytes  int64              `json:"wal_size_bytes"`
	LastDBWriteTs time.Time          `json:"last_db_write_ts"`
	TokenGap      bool               `json:"token_gap"`
	AttemptsTotal int64              `json:"attempts_total"`
}

// Reporter assembles Snapshot on demand and keeps a matching set of
// Prometheus collectors updated for scraping.
type Reporter struct {
	breaker *breaker.Breaker
	gate    *gate.Gate
	orch    *orchestrator.Orchestrator
	wal     *wal.WAL
	persist *persistence.Service
	db      *dbwriter.Writer
	boot    *boot.Boot

	providerLimits map[string]int

	circuitStateGauge *prometheus.GaugeVec
	inflightGauge     *prometheus.GaugeVec
	walSizeGauge      prometheus.Gauge
	tokenGapGauge     prometheus.Gauge
	lastWriteGauge    prometheus.Gauge
}

func NewReporter(
	b *breaker.Breaker,
	g *gate.Gate,
	orch *orchestrator.Orchestrator,
	w *wal.WAL,
	persist *persistence.Service,
	db *dbwriter.Writer,
	bt *boot.Boot,
	providerLimits map[string]int,
	registry prometheus.Registerer,
) *Reporter {
	r := &Reporter{
		breaker:        b,
		gate:           g,
		orch:           orch,
		wal:            w,
		persist:        persist,
		db:             db,
		boot:           bt,
		providerLimits: providerLimits,
		circuitStateGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "langdock_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),
		inflightGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "langdock_provider_inflight",
			Help: "Concurrency gate permits currently held per provider.",
		}, []string{"provider"}),
		walSizeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "langdock_wal_size_bytes",
			Help: "Current size of the write-ahead log file.",
		}),
		tokenGapGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "langdock_token_gap",
			Help: "1 if the boot-time gap scan found a missing token_index, else 0.",
		}),
		lastWriteGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "langdock_seconds_since_last_db_write",
			Help: "Seconds since the last successful database write.",
		}),
	}
	if registry != nil {
		registry.MustRegister(r.circuitStateGauge, r.inflightGauge, r.walSizeGauge, r.tokenGapGauge, r.lastWriteGauge)
	}
	return r
}

func circuitStateValue(s breaker.State) float64 {
	switch s {
	case breaker.Closed:
		return 0
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return -1
	}
}

// Snapshot builds the current view and refreshes the Prometheus
// collectors as a side effect.
func (r *Reporter) Snapshot(ctx context.Context) Snapshot {
	var providers []ProviderSnapshot
	for provider, limit := range r.providerLimits {
		snap := r.breaker.Snapshot(provider)
		inflight := r.gate.Inflight(provider)

		r.circuitStateGauge.WithLabelValues(provider).Set(circuitStateValue(snap.State))
		r.inflightGauge.WithLabelValues(provider).Set(float64(inflight))

		providers = append(providers, ProviderSnapshot{
			Provider:         provider,
			CircuitState:     string(snap.State),
			ConsecutiveFails: snap.ConsecutiveFails,
			InflightPermits:  inflight,
			OpenUntil:        snap.OpenUntil,
		})
		_ = limit
	}

	walSize, _ := r.wal.Size()
	r.walSizeGauge.Set(float64(walSize))

	tokenGap := r.boot.TokenGap()
	if tokenGap {
		r.tokenGapGauge.Set(1)
	} else {
		r.tokenGapGauge.Set(0)
	}

	lastWrite := r.persist.LastDBWriteTs()
	if !lastWrite.IsZero() {
		r.lastWriteGauge.Set(time.Since(lastWrite).Seconds())
	}

	attemptsTotal, _ := r.db.CountAttempts(ctx)

	return Snapshot{
		Providers:     providers,
		BufferLengths: r.orch.LiveBufferSnapshot(),
		WALSizeBytes:  walSize,
		LastDBWriteTs: lastWrite,
		TokenGap:      tokenGap,
		AttemptsTotal: attemptsTotal,
	}
}

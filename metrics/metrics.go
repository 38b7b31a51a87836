package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"balloon-game-server/balloon"
)

// Collector turns game events into Prometheus metrics. It implements balloon.EventSink.
type Collector struct {
	events      *prometheus.CounterVec
	activeGames prometheus.Gauge
	banked      prometheus.Histogram
	finalScore  prometheus.Histogram
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balloon",
			Name:      "events_total",
			Help:      "Game events by kind.",
		}, []string{"kind"}),
		activeGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "balloon",
			Name:      "active_games",
			Help:      "Games currently in progress.",
		}),
		banked: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "balloon",
			Name:      "banked_points",
			Help:      "Points moved into the total per bank.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 8),
		}),
		finalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "balloon",
			Name:      "final_score",
			Help:      "Total score of completed games.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
	reg.MustRegister(c.events, c.activeGames, c.banked, c.finalScore)
	return c
}

// Publish records ev.
func (c *Collector) Publish(ev balloon.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case balloon.EventStarted:
		c.activeGames.Inc()
	case balloon.EventBanked:
		c.banked.Observe(float64(ev.Points))
	case balloon.EventCompleted:
		c.activeGames.Dec()
		c.finalScore.Observe(float64(ev.TotalScore))
	case balloon.EventAbandoned:
		c.activeGames.Dec()
	}
}

// AddActiveGames adjusts the active games gauge for games resumed at startup.
func (c *Collector) AddActiveGames(n int) {
	c.activeGames.Add(float64(n))
}

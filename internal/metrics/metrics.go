package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/AppleHolic/recording-studio-api/internal/corpus"
	"github.com/AppleHolic/recording-studio-api/internal/journal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CorpusStatsProvider exposes prompt counts.
type CorpusStatsProvider interface {
	Stats() corpus.Stats
}

// TakeEventCounter returns journal event counts grouped by action.
type TakeEventCounter interface {
	CountByAction(ctx context.Context) (map[journal.Action]int64, error)
}

// Collector is a prometheus.Collector that gathers studio metrics at scrape time.
type Collector struct {
	corpus    CorpusStatsProvider
	events    TakeEventCounter
	startTime time.Time

	promptsDesc    *prometheus.Desc
	recordedDesc   *prometheus.Desc
	unrecordedDesc *prometheus.Desc
	referencesDesc *prometheus.Desc
	takeEventsDesc *prometheus.Desc
	uptimeDesc     *prometheus.Desc
}

// NewCollector creates a new metrics collector. events may be nil.
func NewCollector(stats CorpusStatsProvider, events TakeEventCounter, startTime time.Time) *Collector {
	return &Collector{
		corpus:    stats,
		events:    events,
		startTime: startTime,

		promptsDesc: prometheus.NewDesc(
			"studio_prompts_total",
			"Number of prompts in the corpus",
			nil, nil,
		),
		recordedDesc: prometheus.NewDesc(
			"studio_prompts_recorded",
			"Number of prompts with a recorded take",
			nil, nil,
		),
		unrecordedDesc: prometheus.NewDesc(
			"studio_prompts_unrecorded",
			"Number of prompts still waiting for a take",
			nil, nil,
		),
		referencesDesc: prometheus.NewDesc(
			"studio_reference_audio_total",
			"Number of prompts with reference audio",
			nil, nil,
		),
		takeEventsDesc: prometheus.NewDesc(
			"studio_take_events_total",
			"Take events recorded in the journal",
			[]string{"action"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"studio_uptime_seconds",
			"Seconds since the studio process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.promptsDesc
	ch <- c.recordedDesc
	ch <- c.unrecordedDesc
	ch <- c.referencesDesc
	ch <- c.takeEventsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.corpus != nil {
		st := c.corpus.Stats()
		ch <- prometheus.MustNewConstMetric(c.promptsDesc, prometheus.GaugeValue, float64(st.Total))
		ch <- prometheus.MustNewConstMetric(c.recordedDesc, prometheus.GaugeValue, float64(st.Recorded))
		ch <- prometheus.MustNewConstMetric(c.unrecordedDesc, prometheus.GaugeValue, float64(st.Unrecorded))
		ch <- prometheus.MustNewConstMetric(c.referencesDesc, prometheus.GaugeValue, float64(st.References))
	}

	if c.events != nil {
		counts, err := c.events.CountByAction(ctx)
		if err != nil {
			slog.Error("metrics: failed to count take events", "error", err)
		} else {
			for _, a := range journal.Actions {
				ch <- prometheus.MustNewConstMetric(
					c.takeEventsDesc, prometheus.CounterValue,
					float64(counts[a]), string(a),
				)
			}
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}

// Handler returns the /metrics handler serving c alongside the Go runtime
// and process collectors.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

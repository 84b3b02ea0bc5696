package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeu5/studybreak-rl/types"
)

// Metrics of the recommender, registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	actions          *prometheus.CounterVec
	stepReward       prometheus.Histogram
	trainingEpisodes prometheus.Counter
	episodeReward    prometheus.Gauge
	sessions         prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studybreak_actions_total",
			Help: "Number of actions taken in study sessions",
		}, []string{"action"}),
		stepReward: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "studybreak_step_reward",
			Help:    "Reward of the actions taken in study sessions",
			Buckets: prometheus.LinearBuckets(-3, 0.5, 13),
		}),
		trainingEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studybreak_training_episodes_total",
			Help: "Number of training episodes run",
		}),
		episodeReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studybreak_training_episode_reward",
			Help: "Total reward of the last training episode",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studybreak_sessions_recorded_total",
			Help: "Number of finished study sessions recorded",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studybreak_http_request_duration_seconds",
			Help:    "Duration of the API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(
		m.actions,
		m.stepReward,
		m.trainingEpisodes,
		m.episodeReward,
		m.sessions,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveAction(a types.Action, reward float64) {
	m.actions.WithLabelValues(a.String()).Inc()
	m.stepReward.Observe(reward)
}

func (m *Metrics) ObserveTrainingEpisode(reward float64) {
	m.trainingEpisodes.Inc()
	m.episodeReward.Set(reward)
}

func (m *Metrics) IncrementSessions() {
	m.sessions.Inc()
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 认证、限流和用量相关的 Prometheus 指标
type Metrics struct {
	Requests         *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	InFlight         prometheus.Gauge
	Logins           *prometheus.CounterVec
	TokenFailures    *prometheus.CounterVec
	RateLimitDenied  *prometheus.CounterVec
	UsageLimitDenied prometheus.Counter
}

// New 创建并注册指标；reg 为 nil 时使用独立的 Registry
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hashtag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hashtag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hashtag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hashtag",
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts partitioned by result.",
		}, []string{"result"}),
		TokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hashtag",
			Subsystem: "auth",
			Name:      "token_failures_total",
			Help:      "Rejected session tokens partitioned by reason.",
		}, []string{"reason"}),
		RateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hashtag",
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Requests rejected by the rate limiter partitioned by scope.",
		}, []string{"scope"}),
		UsageLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hashtag",
			Subsystem: "usage",
			Name:      "limit_denied_total",
			Help:      "Generations rejected because the monthly quota was reached.",
		}),
	}

	collectors := []prometheus.Collector{
		m.Requests, m.Duration, m.InFlight, m.Logins,
		m.TokenFailures, m.RateLimitDenied, m.UsageLimitDenied,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Nop 不注册到任何 Registry 的指标，用于测试
func Nop() *Metrics {
	m, _ := New(prometheus.NewRegistry())
	return m
}

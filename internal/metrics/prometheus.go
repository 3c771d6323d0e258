package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gradelens_chat_turn_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradelens_chat_turns_total",
			Help: "Total chat turns by outcome",
		},
		[]string{"outcome"},
	)

	CoursesPerTurn = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gradelens_chat_courses_per_turn",
			Help:    "Resolved courses per chat turn",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradelens_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradelens_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ScrapesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradelens_review_scrapes_total",
			Help: "Total review-page scrapes by result",
		},
		[]string{"status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradelens_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	StreamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradelens_stream_chunks_total",
			Help: "Total answer chunks streamed to clients",
		},
	)
)

func Init() {
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(TurnsTotal)
	prometheus.MustRegister(CoursesPerTurn)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ScrapesTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(StreamChunks)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Chat messages processed, by resolved model and detected content type",
	}, []string{"model", "content_type"})

	chatFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fallbacks_total",
		Help: "Responses that degraded to fallback text, by model",
	}, []string{"model"})

	chatGenerationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_generation_seconds",
		Help:    "Wall time spent generating a response",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"model"})

	rateLimitExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Requests that exceeded the daily allowance, by tier",
	}, []string{"tier"})
)

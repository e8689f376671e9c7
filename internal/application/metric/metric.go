package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Общее количество HTTP ошибок",
		},
		[]string{"method", "endpoint", "status"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_messages_total",
			Help: "Сохранённые сообщения по типу",
		},
		[]string{"type"},
	)

	dedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "room_message_dedup_hits_total",
			Help: "Повторные отправки, поглощённые окном идемпотентности",
		},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Отклонённые лимитером действия",
		},
		[]string{"action"},
	)

	roomsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rooms_deleted_total",
			Help: "Удалённые комнаты по причине",
		},
		[]string{"reason"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "room_sweep_duration_seconds",
			Help:    "Длительность фоновых проходов удаления",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	sideEffectQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "side_effect_queue_depth",
			Help: "Задачи аудита и аналитики, ожидающие обработки",
		},
	)

	sideEffectDeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_dead_letters_total",
			Help: "Задачи, отброшенные после исчерпания попыток",
		},
		[]string{"kind"},
	)

	coordinationDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordination_store_degraded_total",
			Help: "Операции, выполненные в деградированном режиме из-за недоступного KV",
		},
		[]string{"op"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func IncMessages(msgType string) {
	messagesTotal.WithLabelValues(msgType).Inc()
}

func IncDedupHits() {
	dedupHitsTotal.Inc()
}

func IncRateLimited(action string) {
	rateLimitedTotal.WithLabelValues(action).Inc()
}

func IncRoomsDeleted(reason string, n int) {
	roomsDeletedTotal.WithLabelValues(reason).Add(float64(n))
}

func ObserveSweep(sweep string, d time.Duration) {
	sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

func SetSideEffectQueueDepth(n int) {
	sideEffectQueueDepth.Set(float64(n))
}

func IncSideEffectDeadLetters(kind string) {
	sideEffectDeadLetters.WithLabelValues(kind).Inc()
}

func IncCoordinationDegraded(op string) {
	coordinationDegradedTotal.WithLabelValues(op).Inc()
}

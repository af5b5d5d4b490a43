// Package telemetry exposes Prometheus metrics for the automation and a
// small /metrics listener.
package telemetry

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SessionsStarted    prometheus.Counter
	SessionsTerminated prometheus.Counter
	ScreeningPasses    prometheus.Counter
	GreetingsSent      prometheus.Counter
	SpeakerInvites     prometheus.Counter
	ModPromotes        prometheus.Counter
	Reconnects         prometheus.Counter
	PingsHandled       prometheus.Counter
	ChatRateLimited    prometheus.Counter

	SessionActiveGauge prometheus.Gauge
	ActiveTasksGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_sessions_started_total", Help: "Number of room sessions started"})
		SessionsTerminated = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_sessions_terminated_total", Help: "Number of room sessions terminated"})
		ScreeningPasses = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_screening_passes_total", Help: "Number of guest screening passes"})
		GreetingsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_greetings_sent_total", Help: "Number of welcome messages sent"})
		SpeakerInvites = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_speaker_invites_total", Help: "Number of invite-to-speak calls issued"})
		ModPromotes = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_mod_promotes_total", Help: "Number of promote-to-moderator calls issued"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_reconnects_total", Help: "Number of reconnection attempts after a lost room"})
		PingsHandled = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_pings_handled_total", Help: "Number of authorized room invites acted on"})
		ChatRateLimited = promauto.NewCounter(prometheus.CounterOpts{Name: "automod_chat_rate_limited_total", Help: "Number of chat sends rejected for cadence"})
		SessionActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "automod_session_active", Help: "1 while a room session is active"})
		ActiveTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "automod_active_tasks", Help: "Number of scheduled background tasks currently running"})
	})
}

// Serve starts the metrics listener on addr and blocks until the server
// exits. Pass an empty addr to disable.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics listener failed", "error", err)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/streamlink"
)

const metricsShutdownTimeout = 3 * time.Second

// newMetricsRouter serves the registry on /metrics and a liveness probe on /healthz.
func newMetricsRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return r
}

// serveMetrics runs the metrics HTTP server on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, l logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsRouter(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	l.Info("uhs2ctl: serving metrics", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// linkCollectors exposes the stream link metrics as prometheus counters.
func linkCollectors(m *streamlink.LinkMetrics, constLabels prometheus.Labels) []prometheus.Collector {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "uhs2",
			Subsystem:   "link",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(v.Load()) })
	}

	return []prometheus.Collector{
		counter("frames_sent_total", "Total number of frames written, retransmits included.", &m.FrameSendCount),
		counter("frames_received_total", "Total number of valid response frames received.", &m.FrameRecvCount),
		counter("frame_errors_total", "Total number of damaged response frames.", &m.FrameErrCount),
		counter("retransmits_total", "Total number of retransmitted frames.", &m.RetryCount),
		counter("timeouts_total", "Total number of response timeouts.", &m.TimeoutCount),
	}
}

// Package metrics provides Prometheus collectors for the capture device coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low-cardinality: no session ids or titles.

var (
	// DeviceOpenTotal counts open attempts by result.
	DeviceOpenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camctl_device_open_total",
		Help: "Total number of device open attempts, by result (ready/unavailable/access_error/open_failed/preview_failed/lock_timeout).",
	}, []string{"result"})

	// DeviceCloseTotal counts close calls by whether a handle was present.
	DeviceCloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camctl_device_close_total",
		Help: "Total number of device close calls, by outcome (closed/noop).",
	}, []string{"outcome"})

	// DeviceLockWaitSeconds observes how long open and close waited for the device lock.
	DeviceLockWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camctl_device_lock_wait_seconds",
		Help:    "Time spent waiting for the device open/close lock, by operation.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})

	// DeviceState exposes the controller state as its numeric value.
	DeviceState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camctl_device_state",
		Help: "Current device controller state (0=closed 1=opening 2=preview_starting 3=ready 4=closing).",
	})

	// CaptureSessionsTotal counts sessions by terminal result.
	CaptureSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camctl_capture_sessions_total",
		Help: "Total number of capture sessions, by result (started/saved/failed/store_error).",
	}, []string{"result"})

	// PreviewTransformTotal counts transform computations by result.
	PreviewTransformTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camctl_preview_transform_total",
		Help: "Total number of preview transform requests, by result (applied/unchanged/deferred).",
	}, []string{"result"})

	// FocusScanFrames observes the number of frames an autofocus scan took.
	FocusScanFrames = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camctl_focus_scan_frames",
		Help:    "Frames spent per autofocus scan, by mode (passive/active).",
		Buckets: prometheus.LinearBuckets(2, 4, 10),
	}, []string{"mode"})

	// CountdownTotal counts self-timer runs by outcome.
	CountdownTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camctl_countdown_total",
		Help: "Total number of self-timer countdowns, by outcome (finished/canceled).",
	}, []string{"outcome"})
)

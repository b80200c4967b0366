/*
Copyright 2026 The reliqueue Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package qmetrics provides ambient Prometheus instrumentation for queue
// adapters: call counters and size gauges, labeled by backend and instance
// name. Wiring a Recorder is optional — adapters default to NoopRecorder —
// so metrics never become a behavioral dependency of the core protocol.
package qmetrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the narrow interface adapters depend on. It is satisfied by
// both PrometheusRecorder and NoopRecorder.
type Recorder interface {
	ObserveEnqueue(backend, instance string, ok bool)
	ObserveTake(backend, instance string, hit bool)
	ObserveFinalize(backend, instance string)
	ObserveRequeue(backend, instance string, silent bool)
	SetQueueSize(backend, instance string, size int)
	SetEphemeralSize(backend, instance string, size int)
}

// NoopRecorder discards every observation. It is the default Recorder.
type NoopRecorder struct{}

func (NoopRecorder) ObserveEnqueue(string, string, bool)     {}
func (NoopRecorder) ObserveTake(string, string, bool)        {}
func (NoopRecorder) ObserveFinalize(string, string)          {}
func (NoopRecorder) ObserveRequeue(string, string, bool)     {}
func (NoopRecorder) SetQueueSize(string, string, int)        {}
func (NoopRecorder) SetEphemeralSize(string, string, int)    {}

// PrometheusRecorder records queue operations against a shared set of
// Prometheus collectors, mirroring the teacher's per-scaler prommetrics
// registration.
type PrometheusRecorder struct {
	enqueueTotal   *prometheus.CounterVec
	takeTotal      *prometheus.CounterVec
	finalizeTotal  *prometheus.CounterVec
	requeueTotal   *prometheus.CounterVec
	queueSize      *prometheus.GaugeVec
	ephemeralSize  *prometheus.GaugeVec
}

// NewPrometheusRecorder builds a PrometheusRecorder and registers its
// collectors with reg. Passing prometheus.DefaultRegisterer mirrors the
// teacher's default registration path.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		enqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliqueue",
			Name:      "enqueue_total",
			Help:      "Number of Enqueue calls, partitioned by backend, instance and outcome.",
		}, []string{"backend", "instance", "result"}),
		takeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliqueue",
			Name:      "take_total",
			Help:      "Number of Take calls, partitioned by backend, instance and whether a message was returned.",
		}, []string{"backend", "instance", "result"}),
		finalizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliqueue",
			Name:      "finalize_total",
			Help:      "Number of Finalize calls, partitioned by backend and instance.",
		}, []string{"backend", "instance"}),
		requeueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reliqueue",
			Name:      "requeue_total",
			Help:      "Number of Requeue/RequeueSilent calls, partitioned by backend, instance and kind.",
		}, []string{"backend", "instance", "kind"}),
		queueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reliqueue",
			Name:      "queue_size",
			Help:      "Last observed queue storage size.",
		}, []string{"backend", "instance"}),
		ephemeralSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reliqueue",
			Name:      "ephemeral_size",
			Help:      "Last observed ephemeral storage size.",
		}, []string{"backend", "instance"}),
	}
	reg.MustRegister(r.enqueueTotal, r.takeTotal, r.finalizeTotal, r.requeueTotal, r.queueSize, r.ephemeralSize)
	return r
}

func (r *PrometheusRecorder) ObserveEnqueue(backend, instance string, ok bool) {
	r.enqueueTotal.WithLabelValues(backend, instance, resultLabel(ok)).Inc()
}

func (r *PrometheusRecorder) ObserveTake(backend, instance string, hit bool) {
	r.takeTotal.WithLabelValues(backend, instance, hitLabel(hit)).Inc()
}

func (r *PrometheusRecorder) ObserveFinalize(backend, instance string) {
	r.finalizeTotal.WithLabelValues(backend, instance).Inc()
}

func (r *PrometheusRecorder) ObserveRequeue(backend, instance string, silent bool) {
	kind := "normal"
	if silent {
		kind = "silent"
	}
	r.requeueTotal.WithLabelValues(backend, instance, kind).Inc()
}

func (r *PrometheusRecorder) SetQueueSize(backend, instance string, size int) {
	r.queueSize.WithLabelValues(backend, instance).Set(float64(size))
}

func (r *PrometheusRecorder) SetEphemeralSize(backend, instance string, size int) {
	r.ephemeralSize.WithLabelValues(backend, instance).Set(float64(size))
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "empty"
}

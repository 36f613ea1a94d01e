package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

// LatencyRecorder feeds Authenticate durations into an OTel histogram.
//
// The OTel API has no asynchronous histogram, so the recorder is attached to
// the engine at build time:
//
//	rec, err := otel.NewLatencyRecorder(meter)
//	engine, err := sessionauth.New().WithAuthenticateObserver(rec.Observe)...Build()
type LatencyRecorder struct {
	histogram metric.Float64Histogram
}

// NewLatencyRecorder creates the histogram on meter with the engine's bucket
// bounds.
func NewLatencyRecorder(meter metric.Meter) (*LatencyRecorder, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	def := internaldefs.HistogramDefs[0]
	h, err := meter.Float64Histogram(
		def.Name,
		metric.WithDescription(def.Help),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(internaldefs.HistogramUpperBounds...),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", def.Name, err)
	}
	return &LatencyRecorder{histogram: h}, nil
}

// Observe records one Authenticate duration. A nil recorder does nothing.
func (r *LatencyRecorder) Observe(d time.Duration) {
	if r == nil {
		return
	}
	r.histogram.Record(context.Background(), d.Seconds())
}

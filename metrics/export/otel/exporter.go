package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() sessionauth.MetricsSnapshot
	AuditDropped() uint64
}

// outcome maps one engine counter onto a data point of a grouped instrument.
type outcome struct {
	id    sessionauth.MetricID
	key   string
	value string
}

// counterFamily is one OTel counter whose data points are engine counters
// split by a single attribute.
type counterFamily struct {
	name     string
	help     string
	outcomes []outcome
}

var counterFamilies = []counterFamily{
	{
		name: "sessionauth_login_total",
		help: "Login attempts by outcome.",
		outcomes: []outcome{
			{sessionauth.MetricLoginSuccess, "outcome", "success"},
			{sessionauth.MetricLoginFailure, "outcome", "bad_credentials"},
			{sessionauth.MetricLoginRateLimited, "outcome", "rate_limited"},
		},
	},
	{
		name: "sessionauth_authenticate_total",
		help: "Bearer tokens checked at the revocation gate by outcome.",
		outcomes: []outcome{
			{sessionauth.MetricAuthenticateSuccess, "outcome", "admitted"},
			{sessionauth.MetricTokenInvalid, "outcome", "invalid"},
			{sessionauth.MetricTokenNotActive, "outcome", "not_active"},
		},
	},
	{
		name: "sessionauth_token_total",
		help: "Access tokens handed out by login, by source.",
		outcomes: []outcome{
			{sessionauth.MetricTokenIssued, "source", "issued"},
			{sessionauth.MetricTokenReused, "source", "reused"},
			{sessionauth.MetricClaimRaceLost, "source", "claim_race_lost"},
		},
	},
	{
		name: "sessionauth_user_total",
		help: "Credential store writes made by login.",
		outcomes: []outcome{
			{sessionauth.MetricUserRegistered, "event", "registered"},
			{sessionauth.MetricRegisterConflict, "event", "register_conflict"},
			{sessionauth.MetricPasswordUpgraded, "event", "password_upgraded"},
		},
	},
	{
		name: "sessionauth_session_revoked_total",
		help: "Session revocations by cause.",
		outcomes: []outcome{
			{sessionauth.MetricLogout, "cause", "logout"},
			{sessionauth.MetricRevokeUser, "cause", "revoke_user"},
		},
	},
}

type observedPoint struct {
	id    sessionauth.MetricID
	attrs metric.MeasurementOption
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	points     []observedPoint
}

// OTelExporter publishes engine counters as attribute-split observable OTel
// counters. Authenticate latency goes through [LatencyRecorder] instead.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []observedFamily
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *sessionauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is [NewOTelExporter] for any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:   source,
		families: make([]observedFamily, 0, len(counterFamilies)),
	}
	observables := make([]metric.Observable, 0, len(counterFamilies)+1)

	for _, family := range counterFamilies {
		ins, err := meter.Int64ObservableCounter(family.name, metric.WithDescription(family.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", family.name, err)
		}
		observed := observedFamily{
			instrument: ins,
			points:     make([]observedPoint, 0, len(family.outcomes)),
		}
		for _, o := range family.outcomes {
			observed.points = append(observed.points, observedPoint{
				id:    o.id,
				attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String(o.key, o.value))),
			})
		}
		exporter.families = append(exporter.families, observed)
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, family := range e.families {
		for _, p := range family.points {
			observer.ObserveInt64(family.instrument, int64(snapshot.Counters[p.id]), p.attrs)
		}
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

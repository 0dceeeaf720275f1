package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	entriesPosted   metric.Int64Counter
	entriesReversed metric.Int64Counter
	businessEvents  metric.Int64Counter
	matchesProposed metric.Int64Counter
	matchesResolved metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ledgercore"
	}
	meter := provider.Meter(name)

	entriesPosted, err := meter.Int64Counter("ledgercore_journal_entries_posted_total")
	if err != nil {
		return nil, err
	}
	entriesReversed, err := meter.Int64Counter("ledgercore_journal_entries_reversed_total")
	if err != nil {
		return nil, err
	}
	businessEvents, err := meter.Int64Counter("ledgercore_business_events_total")
	if err != nil {
		return nil, err
	}
	matchesProposed, err := meter.Int64Counter("ledgercore_reconciliation_matches_proposed_total")
	if err != nil {
		return nil, err
	}
	matchesResolved, err := meter.Int64Counter("ledgercore_reconciliation_matches_resolved_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		entriesPosted:   entriesPosted,
		entriesReversed: entriesReversed,
		businessEvents:  businessEvents,
		matchesProposed: matchesProposed,
		matchesResolved: matchesResolved,
	}, nil
}

// RecordEntryPosted counts posted journal entries by entry type.
func (m *Metrics) RecordEntryPosted(ctx context.Context, entryType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entry_type", strings.TrimSpace(entryType)))
	m.entriesPosted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordEntryReversed(ctx context.Context) {
	if m == nil {
		return
	}
	m.entriesReversed.Add(ctx, 1)
}

// RecordBusinessEvent counts business events by type and outcome.
func (m *Metrics) RecordBusinessEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.businessEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordMatchesProposed(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.matchesProposed.Add(ctx, int64(count))
}

// RecordMatchResolved counts confirm/reject decisions.
func (m *Metrics) RecordMatchResolved(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.matchesResolved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":     {},
	"entry_type": {},
	"event_type": {},
	"outcome":    {},
	"status":     {},
	"reason":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

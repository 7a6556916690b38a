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

// Metrics exposes billing domain instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	invoicesGenerated metric.Int64Counter
	invoicesSkipped   metric.Int64Counter
	earningsUpserted  metric.Int64Counter
	paymentCascades   metric.Int64Counter
	payoutTransitions metric.Int64Counter
	billedAmount      metric.Float64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "adbilling"
	}
	meter := provider.Meter(name)

	invoicesGenerated, err := meter.Int64Counter("adbilling_invoices_generated_total")
	if err != nil {
		return nil, err
	}
	invoicesSkipped, err := meter.Int64Counter("adbilling_invoices_skipped_total")
	if err != nil {
		return nil, err
	}
	earningsUpserted, err := meter.Int64Counter("adbilling_earnings_upserted_total")
	if err != nil {
		return nil, err
	}
	paymentCascades, err := meter.Int64Counter("adbilling_payment_cascades_total")
	if err != nil {
		return nil, err
	}
	payoutTransitions, err := meter.Int64Counter("adbilling_payout_transitions_total")
	if err != nil {
		return nil, err
	}
	billedAmount, err := meter.Float64Counter("adbilling_billed_amount_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesGenerated: invoicesGenerated,
		invoicesSkipped:   invoicesSkipped,
		earningsUpserted:  earningsUpserted,
		paymentCascades:   paymentCascades,
		payoutTransitions: payoutTransitions,
		billedAmount:      billedAmount,
	}, nil
}

// RecordInvoiceGenerated counts a created invoice and its total.
func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, source string, total float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("amount_source", strings.TrimSpace(source)))
	m.invoicesGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.billedAmount.Add(ctx, total, metric.WithAttributes(attrs...))
}

// RecordInvoiceSkipped counts a campaign left out of a generation run.
func (m *Metrics) RecordInvoiceSkipped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.invoicesSkipped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEarningUpserted counts a partner earning insert or refresh.
func (m *Metrics) RecordEarningUpserted(ctx context.Context, created bool) {
	if m == nil {
		return
	}
	op := "updated"
	if created {
		op = "created"
	}
	attrs := FilterAttributes(attribute.String("operation", op))
	m.earningsUpserted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentCascade counts invoices touched by a payment status change.
func (m *Metrics) RecordPaymentCascade(ctx context.Context, status string, invoices int) {
	if m == nil || invoices <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.paymentCascades.Add(ctx, int64(invoices), metric.WithAttributes(attrs...))
}

// RecordPayoutTransition counts a payout status change.
func (m *Metrics) RecordPayoutTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.payoutTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"amount_source": {},
	"reason":        {},
	"operation":     {},
	"status":        {},
	"from":          {},
	"to":            {},
	"endpoint":      {},
	"status_code":   {},
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

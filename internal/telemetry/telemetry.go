// Package telemetry wires the process-wide OpenTelemetry meter and exposes
// the handful of counters the proxy's core needs, per the observability
// addition: undercount, backfill pages, and PATCH filtered-rewrite outcomes.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Counters is the set of instruments the core uses. It satisfies the
// scim.Metrics interface without scim importing otel directly.
type Counters struct {
	provider        *sdkmetric.MeterProvider
	undercount      metric.Int64Counter
	backfillPages   metric.Int64Counter
	patchRewrite    metric.Int64Counter
}

// New builds a Counters backed by an stdout exporter when debug is true
// (so operators can see the raw metric stream while tuning
// max_filter_fetch_size), or a no-op provider otherwise.
func New(debug bool) (*Counters, error) {
	var provider *sdkmetric.MeterProvider

	if debug {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		provider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		)
	} else {
		provider = sdkmetric.NewMeterProvider()
	}

	meter := provider.Meter("scimproxy")

	undercount, err := meter.Int64Counter(
		"scim_proxy.filter.undercount",
		metric.WithDescription("filtered list requests where the backfill controller stopped at working_size while more upstream data may have existed"),
	)
	if err != nil {
		return nil, err
	}

	backfillPages, err := meter.Int64Counter(
		"scim_proxy.backfill.pages",
		metric.WithDescription("total upstream pages fetched during backfill"),
	)
	if err != nil {
		return nil, err
	}

	patchRewrite, err := meter.Int64Counter(
		"scim_proxy.patch.filtered_rewrite",
		metric.WithDescription("filtered add groups processed by the PATCH adapter, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Counters{
		provider:      provider,
		undercount:    undercount,
		backfillPages: backfillPages,
		patchRewrite:  patchRewrite,
	}, nil
}

func (c *Counters) IncUndercount(ctx context.Context) {
	c.undercount.Add(ctx, 1)
}

func (c *Counters) AddBackfillPages(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	c.backfillPages.Add(ctx, int64(n))
}

func (c *Counters) IncPatchRewrite(ctx context.Context, applied bool) {
	result := "dropped"
	if applied {
		result = "applied"
	}
	c.patchRewrite.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// Shutdown flushes and releases the meter provider.
func (c *Counters) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

// Package push ships metrics from short-lived billing batch runs, which exit
// before any scraper could reach them.
package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	prompush "github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/adbilling/internal/config"
	obstracing "github.com/smallbiznis/adbilling/internal/observability/tracing"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"

	defaultPushTimeout = 5 * time.Second
)

type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// New builds a pusher from config. A misconfigured exporter is logged and
// yields nil so a batch run never fails on metrics delivery.
func New(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.MetricsEnabled {
		return nil
	}

	exporter := cfg.MetricsPush.Exporter
	endpoint := cfg.MetricsPush.Endpoint
	if exporter == "" {
		return nil
	}
	if endpoint == "" {
		logger.Warn("metrics push disabled", zap.Error(errors.New("METRICS_PUSH_ENDPOINT is required")))
		return nil
	}

	switch exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			logger.Warn("metrics push disabled", zap.Error(fmt.Errorf("invalid METRICS_PUSH_ENDPOINT: %w", err)))
			return nil
		}
		return NewRemoteWritePusher(endpoint, cfg.MetricsPush.AuthToken)
	case ExporterPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
			"environment": strings.TrimSpace(cfg.Environment),
		})
	default:
		logger.Warn("metrics push disabled", zap.String("exporter", exporter))
		return nil
	}
}

type RemoteWritePusher struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	now        func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		httpClient: obstracing.WrapHTTPClient(&http.Client{
			Timeout: defaultPushTimeout,
		}),
		now: time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}

	families, err := gatherer.Gather()
	if err != nil {
		return err
	}

	series := BuildSeries(families, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := prompush.New(p.endpoint, p.job).Gatherer(gatherer)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}

// BuildSeries flattens gathered families into remote_write series. Histograms
// and summaries contribute their _sum and _count.
func BuildSeries(families []*dto.MetricFamily, timestampMs int64) []prompb.TimeSeries {
	series := make([]prompb.TimeSeries, 0, len(families))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, sample := range samplesOf(family, metric) {
				series = append(series, prompb.TimeSeries{
					Labels: labelsFor(sample.name, metric),
					Samples: []prompb.Sample{{
						Value:     sample.value,
						Timestamp: timestampMs,
					}},
				})
			}
		}
	}
	return series
}

type namedSample struct {
	name  string
	value float64
}

func samplesOf(family *dto.MetricFamily, metric *dto.Metric) []namedSample {
	if metric == nil {
		return nil
	}
	name := family.GetName()
	switch family.GetType() {
	case dto.MetricType_COUNTER:
		if metric.GetCounter() == nil {
			return nil
		}
		return []namedSample{{name: name, value: metric.GetCounter().GetValue()}}
	case dto.MetricType_GAUGE:
		if metric.GetGauge() == nil {
			return nil
		}
		return []namedSample{{name: name, value: metric.GetGauge().GetValue()}}
	case dto.MetricType_HISTOGRAM:
		h := metric.GetHistogram()
		if h == nil {
			return nil
		}
		return []namedSample{
			{name: name + "_sum", value: h.GetSampleSum()},
			{name: name + "_count", value: float64(h.GetSampleCount())},
		}
	case dto.MetricType_SUMMARY:
		s := metric.GetSummary()
		if s == nil {
			return nil
		}
		return []namedSample{
			{name: name + "_sum", value: s.GetSampleSum()},
			{name: name + "_count", value: float64(s.GetSampleCount())},
		}
	default:
		return nil
	}
}

func labelsFor(name string, metric *dto.Metric) []prompb.Label {
	labels := make([]prompb.Label, 0, len(metric.GetLabel())+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for _, label := range metric.GetLabel() {
		labels = append(labels, prompb.Label{Name: label.GetName(), Value: label.GetValue()})
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].Name < labels[j].Name
	})
	return labels
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// DurationSecondsBuckets is the bucket advice shared by the seconds based
// duration histograms.
var DurationSecondsBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0,
}

// DBClientDurationBuckets follows the db.client.operation.duration advice.
var DBClientDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

func NewFloat64Histogram(metricName, metricUnit, metricDescription string,
	meter metric.Meter, buckets ...float64,
) (metric.Float64Histogram, error) {
	if meter == nil {
		return nil, errors.New("nil meter")
	}
	opts := []metric.Float64HistogramOption{
		metric.WithUnit(metricUnit),
		metric.WithDescription(metricDescription),
	}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	d, err := meter.Float64Histogram(metricName, opts...)
	if err != nil {
		return d, fmt.Errorf("failed to create %s histogram: %w", metricName, err)
	}
	return d, nil
}

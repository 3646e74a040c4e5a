// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package stats provides the pure numeric primitives behind Vigil's anomaly
// detection: mean, sample variance, z-score outlier detection, and the
// last-point-against-baseline test used for burst detection on time-bucketed
// counters.
//
// All functions filter out non-finite values (NaN, ±Inf) before computing and
// return zeroed results for empty input rather than erroring; the callers in
// the aggregation path must never fail on malformed series.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierThreshold is the z-score magnitude at or above which a value
// is considered an outlier when no explicit threshold is supplied.
const DefaultOutlierThreshold = 3.0

// DefaultAnomalyThreshold is the baseline z-score at or above which the
// newest point of a series is considered anomalous.
const DefaultAnomalyThreshold = 3.0

// minAnomalyPoints is the minimum series length for the last-point test: at
// least two baseline points are needed for a meaningful deviation.
const minAnomalyPoints = 3

// sanitize returns the finite values of the input, preserving order.
// The original slice is never modified.
func sanitize(values []float64) []float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	return clean
}

// Mean returns the arithmetic mean of the finite values, or 0 if none.
func Mean(values []float64) float64 {
	clean := sanitize(values)
	if len(clean) == 0 {
		return 0
	}
	return stat.Mean(clean, nil)
}

// Variance returns the sample variance (divisor n-1) of the finite values.
// Returns 0 when fewer than two values remain after filtering.
func Variance(values []float64) float64 {
	clean := sanitize(values)
	if len(clean) <= 1 {
		return 0
	}
	return stat.Variance(clean, nil)
}

// StdDev returns the sample standard deviation of the finite values.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// DetectOutliers returns the values whose z-score magnitude against the full
// sequence's mean and standard deviation is at least threshold. A threshold
// of 0 or below selects DefaultOutlierThreshold.
//
// When the standard deviation is zero (constant series) no outliers are
// reported; flagging every element of a flat series would be a
// divide-by-zero false positive.
func DetectOutliers(values []float64, threshold float64) []float64 {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}

	clean := sanitize(values)
	if len(clean) == 0 {
		return nil
	}

	mean := stat.Mean(clean, nil)
	sd := math.Sqrt(stat.Variance(clean, nil))
	if sd == 0 {
		return nil
	}

	var outliers []float64
	for _, v := range clean {
		if math.Abs(stat.StdScore(v, mean, sd)) >= threshold {
			outliers = append(outliers, v)
		}
	}
	return outliers
}

// IsLastPointAnomalous reports whether the newest point of a series has
// broken from its recent history. All but the last element form the
// baseline; the last element is anomalous when its z-score against the
// baseline mean and standard deviation is at least k. A k of 0 or below
// selects DefaultAnomalyThreshold.
//
// Series with fewer than three finite points are never anomalous: there is
// not enough history to call anything a break from it.
func IsLastPointAnomalous(values []float64, k float64) bool {
	if k <= 0 {
		k = DefaultAnomalyThreshold
	}

	clean := sanitize(values)
	if len(clean) < minAnomalyPoints {
		return false
	}

	baseline := clean[:len(clean)-1]
	last := clean[len(clean)-1]

	mean := stat.Mean(baseline, nil)
	sd := math.Sqrt(stat.Variance(baseline, nil))
	if sd == 0 {
		// Flat baseline gives no spread to score against. A lone first
		// event would register as an infinite break, so stay quiet here;
		// the burst rules and sparse-count checks catch real onsets.
		return false
	}

	return stat.StdScore(last, mean, sd) >= k
}

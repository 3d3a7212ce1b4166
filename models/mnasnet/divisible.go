// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import "math"

// DefaultDivisor is the number every channel count is rounded to a multiple of.
const DefaultDivisor = 8

// MakeDivisible rounds the desired number of channels v to the nearest multiple of divisor,
// but never below minValue and never more than 10% below v.
//
// If divisor <= 0 it uses DefaultDivisor, and if minValue <= 0 it uses divisor.
//
// It follows the rounding used by the MobileNet family of models, see
// https://github.com/tensorflow/models/blob/master/research/slim/nets/mobilenet/mobilenet.py
func MakeDivisible(v float64, divisor, minValue int) int {
	if divisor <= 0 {
		divisor = DefaultDivisor
	}
	if minValue <= 0 {
		minValue = divisor
	}
	d := float64(divisor)
	rounded := int(math.Floor((v+d/2)/d)) * divisor
	rounded = max(minValue, rounded)
	// Rounding down must not lose more than 10% of the channels.
	if float64(rounded) < 0.9*v {
		rounded += divisor
	}
	return rounded
}

// RoundFilters is MakeDivisible with the default divisor and minimum value.
func RoundFilters(v float64) int {
	return MakeDivisible(v, DefaultDivisor, 0)
}

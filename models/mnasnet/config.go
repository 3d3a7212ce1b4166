// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

const (
	// ParamAlpha context hyperparameter defines the width multiplier α applied to every nominal channel count.
	// The value should be a float64. The default is 1.0.
	ParamAlpha = "mnasnet_alpha"

	// ParamDivisor context hyperparameter defines the number every channel count is rounded to a multiple of.
	// The value should be an int. The default is DefaultDivisor.
	ParamDivisor = "mnasnet_divisor"

	// ParamL2 context hyperparameter defines the L2 regularization of the convolution kernels.
	// The value should be a float64. The default is 0.0003.
	ParamL2 = "mnasnet_l2"

	// ParamBatchNormEpsilon context hyperparameter defines the epsilon of every batch normalization layer.
	// The value should be a float64. The default is 1e-3.
	ParamBatchNormEpsilon = "mnasnet_bn_epsilon"

	// ParamBatchNormMomentum context hyperparameter defines the momentum of the moving averages of every
	// batch normalization layer. The value should be a float64. The default is 0.999.
	ParamBatchNormMomentum = "mnasnet_bn_momentum"

	// ParamNumClasses context hyperparameter defines the number of classes used by ModelGraph.
	// The value should be an int. The default is 1000.
	ParamNumClasses = "mnasnet_classes"
)

// DefaultNumClasses is the number of ImageNet classes.
const DefaultNumClasses = 1000

// Config holds the hyperparameters shared by every layer of the model.
type Config struct {
	// Alpha is the width multiplier applied to the nominal number of channels.
	Alpha float64

	// Divisor is the number every channel count is rounded to a multiple of.
	Divisor int

	// L2Regularization is the amount of L2 regularization applied to convolution kernels.
	// Set to 0 to disable it.
	L2Regularization float64

	// BatchNormEpsilon and BatchNormMomentum configure every batch normalization layer.
	BatchNormEpsilon, BatchNormMomentum float64
}

// DefaultConfig returns the configuration of the reference MnasNet model.
func DefaultConfig() Config {
	return Config{
		Alpha:             1.0,
		Divisor:           DefaultDivisor,
		L2Regularization:  0.0003,
		BatchNormEpsilon:  1e-3,
		BatchNormMomentum: 0.999,
	}
}

// WithAlpha returns a copy of the configuration with the given width multiplier.
func (c Config) WithAlpha(alpha float64) Config {
	c.Alpha = alpha
	return c
}

// Validate returns an error if any of the hyperparameters is out of range.
func (c Config) Validate() error {
	if c.Alpha <= 0 {
		return errors.Errorf("mnasnet: width multiplier alpha must be > 0, got %g", c.Alpha)
	}
	if c.Divisor <= 0 {
		return errors.Errorf("mnasnet: channels divisor must be > 0, got %d", c.Divisor)
	}
	if c.L2Regularization < 0 {
		return errors.Errorf("mnasnet: L2 regularization must be >= 0, got %g", c.L2Regularization)
	}
	if c.BatchNormEpsilon <= 0 {
		return errors.Errorf("mnasnet: batch normalization epsilon must be > 0, got %g", c.BatchNormEpsilon)
	}
	if c.BatchNormMomentum < 0 || c.BatchNormMomentum >= 1 {
		return errors.Errorf("mnasnet: batch normalization momentum must be in [0, 1), got %g", c.BatchNormMomentum)
	}
	return nil
}

// Filters scales the nominal number of channels by Alpha and rounds it to a multiple of Divisor.
func (c Config) Filters(nominal int) int {
	return c.round(float64(nominal) * c.Alpha)
}

// round applies MakeDivisible with the configured divisor.
func (c Config) round(v float64) int {
	return MakeDivisible(v, c.Divisor, c.Divisor)
}

// ConfigFromContext reads the configuration from the context hyperparameters (see ParamAlpha and friends),
// using DefaultConfig values for those not set.
func ConfigFromContext(ctx *context.Context) Config {
	c := DefaultConfig()
	c.Alpha = context.GetParamOr(ctx, ParamAlpha, c.Alpha)
	c.Divisor = context.GetParamOr(ctx, ParamDivisor, c.Divisor)
	c.L2Regularization = context.GetParamOr(ctx, ParamL2, c.L2Regularization)
	c.BatchNormEpsilon = context.GetParamOr(ctx, ParamBatchNormEpsilon, c.BatchNormEpsilon)
	c.BatchNormMomentum = context.GetParamOr(ctx, ParamBatchNormMomentum, c.BatchNormMomentum)
	return c
}

// SetParams writes the configuration as context hyperparameters, so it can be read back with ConfigFromContext.
func (c Config) SetParams(ctx *context.Context) {
	ctx.SetParams(map[string]any{
		ParamAlpha:             c.Alpha,
		ParamDivisor:           c.Divisor,
		ParamL2:                c.L2Regularization,
		ParamBatchNormEpsilon:  c.BatchNormEpsilon,
		ParamBatchNormMomentum: c.BatchNormMomentum,
	})
}

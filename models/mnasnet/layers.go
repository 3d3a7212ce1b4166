// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/layers/regularizers"
)

// conv is a bias-free "same" padded convolution with the configured L2 regularization on its kernel.
//
// It creates the variable "conv/weights" under ctx, shaped [kernelSize, kernelSize, inputChannels, filters].
func conv(ctx *context.Context, cfg Config, x *Node, filters, kernelSize, stride int) *Node {
	return layers.Convolution(ctx, x).
		Channels(filters).
		KernelSize(kernelSize).
		Strides(stride).
		PadSame().
		UseBias(false).
		Regularizer(regularizers.L2(cfg.L2Regularization)).
		Done()
}

// depthwiseConv is a bias-free "same" padded depthwise convolution: each channel is convolved with its own
// kernel, and the number of channels is preserved.
//
// It creates the variable "depthwise_conv/weights" under ctx, shaped [kernelSize, kernelSize, 1, channels].
func depthwiseConv(ctx *context.Context, cfg Config, x *Node, kernelSize, stride int) *Node {
	g := x.Graph()
	ctx = ctx.In("depthwise_conv")
	x.AssertRank(4)
	channels := x.Shape().Dimensions[3]
	kernelVar := ctx.VariableWithShape("weights", shapes.Make(x.DType(), kernelSize, kernelSize, 1, channels))
	if reg := regularizers.L2(cfg.L2Regularization); reg != nil {
		reg(ctx, g, kernelVar)
	}
	kernel := kernelVar.ValueGraph(g)
	return Convolve(x, kernel).
		Strides(stride).
		ChannelGroupCount(channels).
		Dilations(1).
		PadSame().
		Done()
}

// batchNorm normalizes the last axis of x.
//
// In training mode (see context.Context.SetTraining) it normalizes with the batch statistics and updates
// the moving averages, otherwise it uses the moving averages.
//
// Inference is built from graph ops rather than the backend's fused op, which not every backend implements.
func batchNorm(ctx *context.Context, cfg Config, x *Node) *Node {
	return batchnorm.New(ctx, x, -1).
		Momentum(cfg.BatchNormMomentum).
		Epsilon(cfg.BatchNormEpsilon).
		UseBackendInference(false).
		Done()
}

// convBN is conv followed by batch normalization and an optional ReLU.
func convBN(ctx *context.Context, cfg Config, x *Node, filters, kernelSize, stride int, relu bool) *Node {
	x = conv(ctx, cfg, x, filters, kernelSize, stride)
	x = batchNorm(ctx, cfg, x)
	if relu {
		x = activations.Relu(x)
	}
	return x
}

// depthwiseBN is depthwiseConv followed by batch normalization and ReLU.
func depthwiseBN(ctx *context.Context, cfg Config, x *Node, kernelSize, stride int) *Node {
	x = depthwiseConv(ctx, cfg, x, kernelSize, stride)
	x = batchNorm(ctx, cfg, x)
	return activations.Relu(x)
}

// checkChannels panics with an exception if the last axis of x doesn't have the expected dimension.
func checkChannels(x *Node, expected int, where string) {
	if x.Rank() != 4 {
		exceptions.Panicf("mnasnet: %s expects an input of rank 4 [batch, height, width, channels], got %s",
			where, x.Shape())
	}
	if got := x.Shape().Dimensions[3]; got != expected {
		exceptions.Panicf("mnasnet: %s expects %d input channels, got shape %s", where, expected, x.Shape())
	}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Block is an inverted residual block (MBConv): a 1x1 expansion convolution, a depthwise convolution
// and a 1x1 linear projection, each followed by batch normalization. The first two are followed by ReLU.
//
// If Plan.Residual is set, the block input is added to the projection output.
type Block struct {
	Config Config
	Plan   BlockPlan
}

// NewBlock creates a Block for the given resolved plan.
func NewBlock(cfg Config, plan BlockPlan) *Block {
	return &Block{Config: cfg, Plan: plan}
}

// Apply builds the block graph for x, shaped [batch, height, width, Plan.InputChannels].
//
// The variables are created in the sub-scopes "expand", "depthwise" and "project" of ctx.
// If training is true, batch normalization uses the batch statistics and updates its moving averages.
//
// It returns a node shaped [batch, ceil(height/stride), ceil(width/stride), Plan.OutputChannels].
// It panics (with an exception) if x doesn't have Plan.InputChannels channels.
func (b *Block) Apply(ctx *context.Context, x *Node, training bool) *Node {
	ctx.SetTraining(x.Graph(), training)
	return b.apply(ctx, x)
}

// apply builds the block using the training state already set in ctx.
func (b *Block) apply(ctx *context.Context, x *Node) *Node {
	p := b.Plan
	checkChannels(x, p.InputChannels, "block "+ctx.Scope())
	shortcut := x
	x = convBN(ctx.In("expand"), b.Config, x, p.ExpandChannels, 1, 1, true)
	x = depthwiseBN(ctx.In("depthwise"), b.Config, x, p.KernelSize, p.Stride)
	x = convBN(ctx.In("project"), b.Config, x, p.OutputChannels, 1, 1, false)
	if p.Residual {
		x = Add(x, shortcut)
	}
	return x
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/pkg/errors"
)

// Scope is the context scope under which the model creates its variables.
const Scope = "mnasnet"

// ImageChannels is the number of channels of the input images (RGB).
const ImageChannels = 3

// Model is a MnasNet image classifier.
//
// It holds only the resolved architecture: the variables live in the context.Context passed to Apply,
// under the Scope sub-scope. A Model can be used to build any number of graphs.
type Model struct {
	plan       *Plan
	numClasses int
	blocks     []*Block
}

// New creates a MnasNet model with the default 16 blocks that classifies images into numClasses classes.
func New(numClasses int, cfg Config) (*Model, error) {
	return NewWithBlocks(numClasses, cfg, DefaultBlocks())
}

// NewWithBlocks creates a MnasNet-like model with the given blocks.
// The blocks' declared input filters must chain, see NewPlan.
func NewWithBlocks(numClasses int, cfg Config, blocks []BlockSpec) (*Model, error) {
	if numClasses < 1 {
		return nil, errors.Errorf("mnasnet: number of classes must be >= 1, got %d", numClasses)
	}
	plan, err := NewPlan(cfg, blocks)
	if err != nil {
		return nil, err
	}
	m := &Model{
		plan:       plan,
		numClasses: numClasses,
		blocks:     make([]*Block, len(plan.Blocks)),
	}
	for ii, b := range plan.Blocks {
		m.blocks[ii] = NewBlock(cfg, b)
	}
	return m, nil
}

// Plan returns the resolved architecture. It should not be modified.
func (m *Model) Plan() *Plan { return m.plan }

// NumClasses returns the number of classes of the logits.
func (m *Model) NumClasses() int { return m.numClasses }

// Apply builds the model graph and returns the logits shaped [batch, NumClasses()].
//
// Parameters:
//   - ctx: context.Context where the variables are created, under the Scope sub-scope. Variables are
//     re-used if they were already created. To have more than one model with different weights, use
//     different scopes of the context.
//   - images: shaped [batch, height, width, 3] (channels-last), see PreprocessImages.
//   - training: if true batch normalization uses the batch statistics and updates its moving averages
//     (which are variables in the context), otherwise it uses the moving averages.
//
// It panics (with an exception) if images is not a float tensor shaped as above. See TryApply for a
// version that returns an error.
func (m *Model) Apply(ctx *context.Context, images *Node, training bool) *Node {
	ctx = ctx.In(Scope)
	ctx.SetTraining(images.Graph(), training)
	return m.logits(ctx, m.embeddings(ctx, images))
}

// Embeddings is like Apply, but it returns the pooled features of the head shaped
// [batch, Plan().HeadChannels], without the final classifier.
func (m *Model) Embeddings(ctx *context.Context, images *Node, training bool) *Node {
	ctx = ctx.In(Scope)
	ctx.SetTraining(images.Graph(), training)
	return m.embeddings(ctx, images)
}

// TryApply is like Apply, but returns an error instead of panicking.
func (m *Model) TryApply(ctx *context.Context, images *Node, training bool) (logits *Node, err error) {
	err = exceptions.TryCatch[error](func() {
		logits = m.Apply(ctx, images, training)
	})
	return
}

// embeddings builds everything up to the global average pooling, with ctx already in the model scope.
func (m *Model) embeddings(ctx *context.Context, x *Node) *Node {
	if x.Rank() != 4 || x.Shape().Dimensions[3] != ImageChannels {
		exceptions.Panicf("mnasnet: images must be shaped [batch, height, width, %d] (channels-last), got %s",
			ImageChannels, x.Shape())
	}
	if !x.DType().IsFloat() {
		exceptions.Panicf("mnasnet: images must be a float tensor, got %s", x.Shape())
	}
	p := m.plan
	cfg := p.Config

	// Stem: regular convolution followed by a separable one, without skip connection.
	stemCtx := ctx.In("stem")
	x = convBN(stemCtx.In("conv3x3"), cfg, x, p.StemChannels, StemKernelSize, StemStride, true)
	x = depthwiseBN(stemCtx.In("depthwise"), cfg, x, StemKernelSize, 1)
	x = convBN(stemCtx.In("pointwise"), cfg, x, p.StemAdjacentChannels, 1, 1, true)

	for ii, block := range m.blocks {
		x = block.apply(ctx.Inf("block_%02d", ii), x)
	}

	x = convBN(ctx.In("head"), cfg, x, p.HeadChannels, 1, 1, true)

	// Global average pooling over the spatial axes.
	return ReduceMean(x, 1, 2)
}

// logits applies the final dense classifier.
func (m *Model) logits(ctx *context.Context, embeddings *Node) *Node {
	return layers.Dense(ctx.In("logits"), embeddings, true, m.numClasses)
}

// ModelGraph builds a MnasNet classifier and can be used as a train.ModelFn.
//
// The configuration is read from the context hyperparameters (see ConfigFromContext), and the number of classes
// from ParamNumClasses. The training mode is read with ctx.IsTraining, which is set by train.Trainer.
//
// inputs[0] are the images shaped [batch, height, width, 3], already preprocessed. It returns the logits.
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec // Not used.
	if len(inputs) == 0 {
		exceptions.Panicf("mnasnet.ModelGraph: expected the images as inputs[0], got no inputs")
	}
	cfg := ConfigFromContext(ctx)
	numClasses := context.GetParamOr(ctx, ParamNumClasses, DefaultNumClasses)
	m, err := New(numClasses, cfg)
	if err != nil {
		exceptions.Panicf("mnasnet.ModelGraph: %+v", err)
	}
	ctx = ctx.In(Scope)
	logits := m.logits(ctx, m.embeddings(ctx, inputs[0]))
	return []*Node{logits}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Nominal (α = 1) widths of the layers outside the inverted residual blocks.
const (
	StemFilters         = 32
	StemAdjacentFilters = 16
	HeadFilters         = 1152

	// StemKernelSize is the kernel size of the stem convolution and of the depthwise convolution that follows it.
	StemKernelSize = 3

	// StemStride is the stride of the stem convolution.
	StemStride = 2

	// ImageSize is the input image size the reference model was designed for.
	ImageSize = 224
)

// Stage is a group of inverted residual blocks with the same number of output filters and kernel size.
// The first block of the stage uses Stride, the Repeats-1 blocks that follow use stride 1.
type Stage struct {
	Filters, KernelSize, Stride, Expansion, Repeats int
}

// DefaultStages is the MnasNet stage table: MBConv3 3x3, MBConv3 5x5, MBConv6 5x5, MBConv6 3x3,
// MBConv6 5x5 and MBConv6 3x3.
var DefaultStages = []Stage{
	{Filters: 24, KernelSize: 3, Stride: 2, Expansion: 3, Repeats: 3},
	{Filters: 40, KernelSize: 5, Stride: 2, Expansion: 3, Repeats: 3},
	{Filters: 80, KernelSize: 5, Stride: 2, Expansion: 6, Repeats: 3},
	{Filters: 96, KernelSize: 3, Stride: 1, Expansion: 6, Repeats: 2},
	{Filters: 192, KernelSize: 5, Stride: 2, Expansion: 6, Repeats: 4},
	{Filters: 320, KernelSize: 3, Stride: 1, Expansion: 6, Repeats: 1},
}

// BlockSpec declares one inverted residual block with nominal (α = 1) filter counts.
type BlockSpec struct {
	// InputFilters is the declared number of input filters, it must match the previous block's Filters.
	InputFilters int

	// Filters is the number of output filters.
	Filters int

	KernelSize, Stride int

	// Expansion multiplies the (rounded) number of input channels for the expanded representation.
	Expansion int
}

// ExpandStages converts the stage table into one BlockSpec per block, chaining each block's InputFilters
// from the previous block, starting with inputFilters.
func ExpandStages(inputFilters int, stages []Stage) []BlockSpec {
	var blocks []BlockSpec
	for _, stage := range stages {
		for repeat := range stage.Repeats {
			stride := stage.Stride
			if repeat > 0 {
				stride = 1
			}
			blocks = append(blocks, BlockSpec{
				InputFilters: inputFilters,
				Filters:      stage.Filters,
				KernelSize:   stage.KernelSize,
				Stride:       stride,
				Expansion:    stage.Expansion,
			})
			inputFilters = stage.Filters
		}
	}
	return blocks
}

// DefaultBlocks returns the 16 blocks of MnasNet.
func DefaultBlocks() []BlockSpec {
	return ExpandStages(StemAdjacentFilters, DefaultStages)
}

// BlockPlan holds the resolved (after α and rounding) configuration of one inverted residual block.
type BlockPlan struct {
	Spec BlockSpec

	// InputChannels is the number of channels the block receives.
	InputChannels int

	// ExpandChannels is the number of channels after the 1x1 expansion.
	ExpandChannels int

	// OutputChannels is the number of channels after the 1x1 projection.
	OutputChannels int

	KernelSize, Stride int

	// Residual is true if the block input is added to its output: stride 1 and same number of channels.
	Residual bool
}

// String implements fmt.Stringer.
func (b BlockPlan) String() string {
	return fmt.Sprintf("MBConv%d %dx%d/%d: %d -> %d -> %d (residual=%v)",
		b.Spec.Expansion, b.KernelSize, b.KernelSize, b.Stride,
		b.InputChannels, b.ExpandChannels, b.OutputChannels, b.Residual)
}

// Plan is the fully resolved architecture: the number of channels of every layer.
//
// It is built once with NewPlan, and never changes after that.
type Plan struct {
	Config Config

	StemChannels, StemAdjacentChannels int
	Blocks                             []BlockPlan
	HeadChannels                       int
}

// NewPlan validates the configuration and the blocks, and resolves the number of channels of every layer.
//
// It returns an error if a block's declared InputFilters doesn't chain with the output of the
// previous block.
func NewPlan(cfg Config, blocks []BlockSpec) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.New("mnasnet: at least one block is required")
	}
	p := &Plan{
		Config:               cfg,
		StemChannels:         cfg.Filters(StemFilters),
		StemAdjacentChannels: cfg.Filters(StemAdjacentFilters),
		HeadChannels:         cfg.Filters(HeadFilters),
		Blocks:               make([]BlockPlan, 0, len(blocks)),
	}
	channels := p.StemAdjacentChannels
	for ii, spec := range blocks {
		if err := spec.validate(); err != nil {
			return nil, errors.WithMessagef(err, "mnasnet: invalid block #%d", ii)
		}
		declared := cfg.Filters(spec.InputFilters)
		if declared != channels {
			return nil, errors.Errorf(
				"mnasnet: block #%d declares %d input filters (%d channels with alpha=%g), "+
					"but the previous layer outputs %d channels",
				ii, spec.InputFilters, declared, cfg.Alpha, channels)
		}
		b := BlockPlan{
			Spec:           spec,
			InputChannels:  channels,
			ExpandChannels: declared * spec.Expansion,
			OutputChannels: cfg.Filters(spec.Filters),
			KernelSize:     spec.KernelSize,
			Stride:         spec.Stride,
		}
		b.Residual = b.Stride == 1 && b.OutputChannels == b.InputChannels
		p.Blocks = append(p.Blocks, b)
		channels = b.OutputChannels
	}
	if klog.V(1).Enabled() {
		klog.Infof("MnasNet plan (alpha=%g): stem=%d, stem-adjacent=%d, head=%d",
			cfg.Alpha, p.StemChannels, p.StemAdjacentChannels, p.HeadChannels)
		for ii, b := range p.Blocks {
			klog.Infof("  block #%02d: %s", ii, b)
		}
	}
	return p, nil
}

// MustNewPlan is like NewPlan, but panics on error.
func MustNewPlan(cfg Config, blocks []BlockSpec) *Plan {
	p, err := NewPlan(cfg, blocks)
	if err != nil {
		panic(err)
	}
	return p
}

func (spec BlockSpec) validate() error {
	if spec.InputFilters < 1 || spec.Filters < 1 {
		return errors.Errorf("filters must be >= 1, got input=%d, output=%d", spec.InputFilters, spec.Filters)
	}
	if spec.KernelSize < 1 || spec.KernelSize%2 == 0 {
		return errors.Errorf("kernel size must be odd and >= 1, got %d", spec.KernelSize)
	}
	if spec.Stride != 1 && spec.Stride != 2 {
		return errors.Errorf("stride must be 1 or 2, got %d", spec.Stride)
	}
	if spec.Expansion < 1 {
		return errors.Errorf("expansion must be >= 1, got %d", spec.Expansion)
	}
	return nil
}

// OutputChannels is the number of channels of the last block.
func (p *Plan) OutputChannels() int {
	return p.Blocks[len(p.Blocks)-1].OutputChannels
}

// SamePaddingSize returns the output size of a "same" padded convolution: ceil(size/stride).
func SamePaddingSize(size, stride int) int {
	return (size + stride - 1) / stride
}

// SpatialSizes returns the spatial size (height or width) of the output of the stem (index 0),
// of the stem-adjacent pair (index 1), and of each block (index 2+i), for an input of the given size.
func (p *Plan) SpatialSizes(inputSize int) []int {
	sizes := make([]int, 0, len(p.Blocks)+2)
	size := SamePaddingSize(inputSize, StemStride)
	sizes = append(sizes, size, size)
	for _, b := range p.Blocks {
		size = SamePaddingSize(size, b.Stride)
		sizes = append(sizes, size)
	}
	return sizes
}

// NumKernelParameters returns the number of weights in the kernels of all convolutions (including
// the depthwise ones) and of the final dense layer. It doesn't include batch normalization or biases.
func (p *Plan) NumKernelParameters(numClasses int) int {
	const imageChannels = 3
	k2 := StemKernelSize * StemKernelSize
	total := k2 * imageChannels * p.StemChannels     // Stem.
	total += k2 * p.StemChannels                     // Depthwise.
	total += p.StemChannels * p.StemAdjacentChannels // Pointwise.
	for _, b := range p.Blocks {
		total += b.InputChannels * b.ExpandChannels             // Expand.
		total += b.KernelSize * b.KernelSize * b.ExpandChannels // Depthwise.
		total += b.ExpandChannels * b.OutputChannels            // Project.
	}
	total += p.OutputChannels() * p.HeadChannels // Head.
	total += p.HeadChannels * numClasses         // Logits.
	return total
}

// NumBatchNormChannels returns the sum of the channels normalized by all batch normalization layers.
// Each of these channels holds a scale, an offset and the moving averages of the mean and variance.
func (p *Plan) NumBatchNormChannels() int {
	total := p.StemChannels + p.StemChannels + p.StemAdjacentChannels
	for _, b := range p.Blocks {
		total += b.ExpandChannels + b.ExpandChannels + b.OutputChannels
	}
	total += p.HeadChannels
	return total
}

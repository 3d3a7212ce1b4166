// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBlocks(t *testing.T) {
	blocks := DefaultBlocks()
	require.Len(t, blocks, 16)
	assert.Equal(t, BlockSpec{InputFilters: 16, Filters: 24, KernelSize: 3, Stride: 2, Expansion: 3}, blocks[0])
	assert.Equal(t, BlockSpec{InputFilters: 24, Filters: 24, KernelSize: 3, Stride: 1, Expansion: 3}, blocks[1])
	assert.Equal(t, BlockSpec{InputFilters: 80, Filters: 96, KernelSize: 3, Stride: 1, Expansion: 6}, blocks[9])
	assert.Equal(t, BlockSpec{InputFilters: 192, Filters: 320, KernelSize: 3, Stride: 1, Expansion: 6}, blocks[15])
	for ii := 1; ii < len(blocks); ii++ {
		assert.Equalf(t, blocks[ii-1].Filters, blocks[ii].InputFilters, "block #%d doesn't chain", ii)
	}
}

func TestNewPlan(t *testing.T) {
	plan, err := NewPlan(DefaultConfig(), DefaultBlocks())
	require.NoError(t, err)
	assert.Equal(t, 32, plan.StemChannels)
	assert.Equal(t, 16, plan.StemAdjacentChannels)
	assert.Equal(t, 1152, plan.HeadChannels)
	assert.Equal(t, 320, plan.OutputChannels())

	var strided, residual []int
	for ii, b := range plan.Blocks {
		if b.Stride == 2 {
			strided = append(strided, ii)
		}
		if b.Residual {
			residual = append(residual, ii)
		}
	}
	assert.Equal(t, []int{0, 3, 6, 11}, strided)
	assert.Equal(t, []int{1, 2, 4, 5, 7, 8, 10, 12, 13, 14}, residual)

	wantOutputs := []int{24, 24, 24, 40, 40, 40, 80, 80, 80, 96, 96, 192, 192, 192, 192, 320}
	wantExpand := []int{48, 72, 72, 72, 120, 120, 240, 480, 480, 480, 576, 576, 1152, 1152, 1152, 1152}
	for ii, b := range plan.Blocks {
		assert.Equalf(t, wantOutputs[ii], b.OutputChannels, "block #%d output channels", ii)
		assert.Equalf(t, wantExpand[ii], b.ExpandChannels, "block #%d expanded channels", ii)
		if ii > 0 {
			assert.Equal(t, plan.Blocks[ii-1].OutputChannels, b.InputChannels)
		}
	}
	assert.Equal(t, "MBConv3 3x3/2: 16 -> 48 -> 24 (residual=false)", plan.Blocks[0].String())
}

func TestNewPlanHalfWidth(t *testing.T) {
	plan, err := NewPlan(DefaultConfig().WithAlpha(0.5), DefaultBlocks())
	require.NoError(t, err)
	assert.Equal(t, 16, plan.StemChannels)
	assert.Equal(t, 8, plan.StemAdjacentChannels)
	assert.Equal(t, 576, plan.HeadChannels)
	assert.Equal(t, 8, plan.Blocks[0].InputChannels)
	assert.Equal(t, 24, plan.Blocks[0].ExpandChannels)
	assert.Equal(t, 160, plan.OutputChannels())
	for ii, b := range plan.Blocks {
		assert.Zerof(t, b.OutputChannels%DefaultDivisor, "block #%d", ii)
		assert.Zerof(t, b.ExpandChannels%DefaultDivisor, "block #%d", ii)
	}
}

func TestNewPlanErrors(t *testing.T) {
	t.Run("broken chain", func(t *testing.T) {
		blocks := DefaultBlocks()
		blocks[5].InputFilters = 24
		_, err := NewPlan(DefaultConfig(), blocks)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "block #5")
		assert.Contains(t, err.Error(), "outputs 40 channels")
	})
	t.Run("stride", func(t *testing.T) {
		blocks := DefaultBlocks()
		blocks[0].Stride = 3
		_, err := NewPlan(DefaultConfig(), blocks)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "block #0")
		assert.Contains(t, err.Error(), "stride")
	})
	t.Run("even kernel", func(t *testing.T) {
		blocks := DefaultBlocks()
		blocks[7].KernelSize = 4
		_, err := NewPlan(DefaultConfig(), blocks)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "block #7")
	})
	t.Run("expansion", func(t *testing.T) {
		blocks := DefaultBlocks()
		blocks[2].Expansion = 0
		_, err := NewPlan(DefaultConfig(), blocks)
		require.Error(t, err)
	})
	t.Run("config", func(t *testing.T) {
		_, err := NewPlan(DefaultConfig().WithAlpha(-1), DefaultBlocks())
		require.Error(t, err)
	})
	t.Run("no blocks", func(t *testing.T) {
		_, err := NewPlan(DefaultConfig(), nil)
		require.Error(t, err)
	})
	require.Panics(t, func() { MustNewPlan(DefaultConfig(), nil) })
}

func TestPlanSpatialSizes(t *testing.T) {
	plan := MustNewPlan(DefaultConfig(), DefaultBlocks())
	sizes := plan.SpatialSizes(ImageSize)
	require.Len(t, sizes, 18)
	assert.Equal(t, []int{112, 112, 56, 56, 56, 28, 28, 28, 14, 14, 14, 14, 14, 7, 7, 7, 7, 7}, sizes)

	// Odd sizes round up with "same" padding.
	sizes = plan.SpatialSizes(33)
	assert.Equal(t, 17, sizes[0])
	assert.Equal(t, 9, sizes[2])
	assert.Equal(t, 2, sizes[len(sizes)-1])
}

func TestPlanParameterCounts(t *testing.T) {
	plan := MustNewPlan(DefaultConfig(), DefaultBlocks())
	half := MustNewPlan(DefaultConfig().WithAlpha(0.5), DefaultBlocks())
	assert.Greater(t, plan.NumKernelParameters(1000), half.NumKernelParameters(1000))
	assert.Equal(t, 1152*10, plan.NumKernelParameters(11)-plan.NumKernelParameters(1))

	// Every layer except the final dense is batch normalized.
	assert.Equal(t, 18832, plan.NumBatchNormChannels())
}

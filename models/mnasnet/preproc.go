// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// PreprocessImages converts images to the format expected by Model.Apply.
//
// It performs 3 tasks:
//
//   - It removes the alpha channel, in case it is provided.
//   - It converts integer images to float32.
//   - It scales the values from [0, maxValue] to [-1, 1]. If maxValue <= 0, the values are not scaled.
//     Training from scratch with batch normalization usually works as well without scaling.
//
// Input images must have a batch dimension (rank=4), be channels-last with either 3 or 4 channels.
func PreprocessImages(images *Node, maxValue float64) *Node {
	if images.Rank() != 4 {
		exceptions.Panicf("mnasnet.PreprocessImages: images must be shaped [batch, height, width, channels], got %s",
			images.Shape())
	}
	switch channels := images.Shape().Dimensions[3]; channels {
	case ImageChannels:
	case ImageChannels + 1:
		images = Slice(images, AxisRange(), AxisRange(), AxisRange(), AxisRange(0, ImageChannels))
	default:
		exceptions.Panicf("mnasnet.PreprocessImages: images must have 3 or 4 channels, got %s", images.Shape())
	}
	if !images.DType().IsFloat() {
		images = ConvertDType(images, dtypes.Float32)
	}
	if maxValue > 0 {
		images = AddScalar(MulScalar(images, 2.0/maxValue), -1)
	}
	return images
}

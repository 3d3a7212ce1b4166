// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mnasnet

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"
)

func TestPreprocessImages(t *testing.T) {
	backend := getTestBackend()
	preprocess := func(ctx *context.Context, images *Node) *Node {
		return PreprocessImages(images, 255)
	}

	t.Run("alpha channel", func(t *testing.T) {
		images := tensors.FromValue([][][][]float32{{{{0, 255, 127.5, 9}, {255, 0, 51, 9}}}})
		gotT := context.MustExecOnce(backend, context.New(), preprocess, images)
		require.NoError(t, gotT.Shape().Check(dtypes.Float32, 1, 1, 2, 3))
		require.InDeltaSlice(t, []float32{-1, 1, 0, 1, -1, -0.6}, tensors.MustCopyFlatData[float32](gotT), 1e-5)
	})

	t.Run("integer", func(t *testing.T) {
		images := tensors.FromValue([][][][]uint8{{{{0, 255, 51}}}})
		gotT := context.MustExecOnce(backend, context.New(), preprocess, images)
		require.NoError(t, gotT.Shape().Check(dtypes.Float32, 1, 1, 1, 3))
		require.InDeltaSlice(t, []float32{-1, 1, -0.6}, tensors.MustCopyFlatData[float32](gotT), 1e-5)
	})

	t.Run("no scaling", func(t *testing.T) {
		images := tensors.FromValue([][][][]float32{{{{0, 255, 51}}}})
		gotT := context.MustExecOnce(backend, context.New(), func(ctx *context.Context, images *Node) *Node {
			return PreprocessImages(images, 0)
		}, images)
		require.InDeltaSlice(t, []float32{0, 255, 51}, tensors.MustCopyFlatData[float32](gotT), 1e-5)
	})
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mnasnet implements the MnasNet (mobile neural architecture search) image classifier for GoMLX.
//
// The model is a stack of inverted residual blocks (MBConv), as described in
// "MnasNet: Platform-Aware Neural Architecture Search for Mobile", https://arxiv.org/abs/1807.11626.
// It is built for channels-last images, and the number of channels of every layer can be scaled with the
// width multiplier Config.Alpha.
//
// Example:
//
//	model, err := mnasnet.New(numClasses, mnasnet.DefaultConfig())
//	if err != nil { ... }
//	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
//		images = mnasnet.PreprocessImages(images, 255)
//		return model.Apply(ctx, images, false)
//	})
//	logits := exec.MustExec(imagesTensor)[0]
//
// To train, use ModelGraph as the train.ModelFn, and configure it with the context hyperparameters
// ParamAlpha, ParamNumClasses, etc.
//
// There are no pre-trained weights: variables are initialized by the context's initializer.
package mnasnet

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"image"
	"math/rand/v2"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/pkg/errors"
)

// splitPaths splits a comma-separated list of paths, ignoring empty entries.
func splitPaths(list string) []string {
	var paths []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// loadImage reads the image file and resizes it to size x size, cropping the center to preserve the
// aspect ratio.
func loadImage(path string, size int) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %q", path)
	}
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos), nil
}

// randomImage returns an image with uniformly random pixel values.
func randomImage(size int, rng *rand.Rand) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for ii := range img.Pix {
		if ii%4 == 3 {
			img.Pix[ii] = 255 // Opaque.
		} else {
			img.Pix[ii] = uint8(rng.IntN(256))
		}
	}
	return img
}

// inputTensor returns the images as a float32 tensor shaped [batch, size, size, 3], with values from 0 to 255.
//
// If paths is empty, it generates batchSize random images.
func inputTensor(paths []string, batchSize, size int, rng *rand.Rand) (*tensors.Tensor, error) {
	if size < 1 {
		return nil, errors.Errorf("invalid image size %d", size)
	}
	var imgs []image.Image
	if len(paths) > 0 {
		imgs = make([]image.Image, 0, len(paths))
		for _, path := range paths {
			img, err := loadImage(path, size)
			if err != nil {
				return nil, err
			}
			imgs = append(imgs, img)
		}
	} else {
		if batchSize < 1 {
			return nil, errors.Errorf("invalid batch size %d", batchSize)
		}
		imgs = make([]image.Image, batchSize)
		for ii := range imgs {
			imgs[ii] = randomImage(size, rng)
		}
	}
	return images.ToTensor(dtypes.Float32).MaxValue(255).Batch(imgs), nil
}

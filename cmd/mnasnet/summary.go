// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/mnasnet/models/mnasnet"
)

var (
	cellStyle         = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
)

// newTable creates a table with the header in reverse, and the columns listed in numericColumns right-aligned.
func newTable(numericColumns ...int) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			if slices.Contains(numericColumns, col) {
				return rightAlignedStyle
			}
			return cellStyle
		})
}

// planTable returns a table with one row per layer of the plan, for square images of the given size.
func planTable(plan *mnasnet.Plan, imageSize, numClasses int) string {
	sizes := plan.SpatialSizes(imageSize)
	spatial := func(idx int) string { return fmt.Sprintf("%dx%d", sizes[idx], sizes[idx]) }
	table := newTable(4, 5, 6).
		Headers("Layer", "Operator", "Kernel", "Stride", "Channels", "Output", "Kernel Weights")

	k := mnasnet.StemKernelSize
	table.Row("stem", "Conv", kernelStr(k), "2",
		fmt.Sprintf("3 -> %d", plan.StemChannels), spatial(0),
		humanize.Comma(int64(k*k*3*plan.StemChannels)))
	table.Row("stem", "SepConv", kernelStr(k), "1",
		fmt.Sprintf("%d -> %d", plan.StemChannels, plan.StemAdjacentChannels), spatial(1),
		humanize.Comma(int64(k*k*plan.StemChannels+plan.StemChannels*plan.StemAdjacentChannels)))
	for ii, b := range plan.Blocks {
		op := fmt.Sprintf("MBConv%d", b.Spec.Expansion)
		if b.Residual {
			op += " +skip"
		}
		weights := b.InputChannels*b.ExpandChannels + b.KernelSize*b.KernelSize*b.ExpandChannels +
			b.ExpandChannels*b.OutputChannels
		table.Row(fmt.Sprintf("block_%02d", ii), op, kernelStr(b.KernelSize), fmt.Sprint(b.Stride),
			fmt.Sprintf("%d -> %d -> %d", b.InputChannels, b.ExpandChannels, b.OutputChannels), spatial(ii+2),
			humanize.Comma(int64(weights)))
	}
	last := len(sizes) - 1
	table.Row("head", "Conv", kernelStr(1), "1",
		fmt.Sprintf("%d -> %d", plan.OutputChannels(), plan.HeadChannels), spatial(last),
		humanize.Comma(int64(plan.OutputChannels()*plan.HeadChannels)))
	table.Row("pool", "AvgPool", "-", "-", fmt.Sprint(plan.HeadChannels), "1x1", "0")
	table.Row("logits", "Dense", "-", "-",
		fmt.Sprintf("%d -> %d", plan.HeadChannels, numClasses), "-",
		humanize.Comma(int64(plan.HeadChannels*numClasses)))

	var sb strings.Builder
	fmt.Fprintf(&sb, "MnasNet (alpha=%g, %d blocks, %dx%d images)\n",
		plan.Config.Alpha, len(plan.Blocks), imageSize, imageSize)
	sb.WriteString(table.Render())
	fmt.Fprintf(&sb, "\nKernel weights: %s; batch normalization channels: %s",
		humanize.Comma(int64(plan.NumKernelParameters(numClasses))),
		humanize.Comma(int64(plan.NumBatchNormChannels())))
	return sb.String()
}

func kernelStr(k int) string { return fmt.Sprintf("%dx%d", k, k) }

// parametersSummary describes the variables of the context, after the model was built.
func parametersSummary(ctx *context.Context) string {
	return fmt.Sprintf("Variables: %s values, %s",
		humanize.Comma(int64(ctx.NumParameters())), humanize.Bytes(uint64(ctx.Memory())))
}

// benchmarkTable summarizes the durations of the benchmark runs.
func benchmarkTable(durations []time.Duration, batchSize int) string {
	if len(durations) == 0 {
		return "No benchmark runs completed."
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	mean := total / time.Duration(len(sorted))
	percentile := func(p float64) time.Duration {
		return sorted[min(len(sorted)-1, int(p*float64(len(sorted))))]
	}
	imagesPerSec := float64(batchSize*len(sorted)) / total.Seconds()
	table := newTable(1).Headers("Metric", "Value")
	table.Row("runs", humanize.Comma(int64(len(sorted))))
	table.Row("mean", commandline.FormatDuration(mean))
	table.Row("min", commandline.FormatDuration(sorted[0]))
	table.Row("median", commandline.FormatDuration(percentile(0.5)))
	table.Row("p90", commandline.FormatDuration(percentile(0.9)))
	table.Row("max", commandline.FormatDuration(sorted[len(sorted)-1]))
	table.Row("images/s", humanize.CommafWithDigits(imagesPerSec, 1))
	return table.Render()
}

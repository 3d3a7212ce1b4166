// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// mnasnet builds a MnasNet classifier, prints its architecture, and runs it on images.
//
// Since there are no pre-trained weights, the predictions are from a randomly initialized model:
// it is meant to inspect the architecture and to benchmark backends.
//
// Usage:
//
//	go run ./cmd/mnasnet
//	go run ./cmd/mnasnet --set="mnasnet_alpha=0.5" --classes=10 --batch=8 --benchmark=100
//	go run ./cmd/mnasnet --image=cat.jpg,dog.png --top=3 --backend=go
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/mnasnet/models/mnasnet"
	"github.com/janpfeifer/must"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagClasses   = flag.Int("classes", 0, "Number of classes. If > 0, it overrides the \""+mnasnet.ParamNumClasses+"\" setting.")
	flagBatch     = flag.Int("batch", 1, "Batch size of the random input, if --image is not given.")
	flagSize      = flag.Int("size", mnasnet.ImageSize, "Height and width of the input images.")
	flagImages    = flag.String("image", "", "Comma-separated list of image files to classify. If empty, random images are used.")
	flagSummary   = flag.Bool("summary", true, "Print the architecture of the model.")
	flagBenchmark = flag.Int("benchmark", 0, "If > 0, number of inference runs to time.")
	flagTop       = flag.Int("top", 5, "Number of top classes to print for each image.")
	flagBackend   = flag.String("backend", "", "Backend to use (default: auto-detect). It sets $"+backends.ConfigEnvVar+".")
	flagSeed      = flag.Uint64("seed", 42, "Seed used to generate random input images.")
)

// createDefaultContext sets the context with default hyperparameters.
func createDefaultContext() *context.Context {
	ctx := context.New()
	mnasnet.DefaultConfig().SetParams(ctx)
	ctx.SetParam(mnasnet.ParamNumClasses, mnasnet.DefaultNumClasses)
	return ctx
}

func main() {
	klog.InitFlags(nil)
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	flag.Parse()

	paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
	if err != nil {
		klog.Fatalf("Failed to parse --set=%q: %+v", *settings, err)
	}
	if *flagClasses > 0 {
		ctx.SetParam(mnasnet.ParamNumClasses, *flagClasses)
		paramsSet = append(paramsSet, mnasnet.ParamNumClasses)
	}
	if klog.V(1).Enabled() {
		klog.Infof("Context settings:\n%s", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	cfg := mnasnet.ConfigFromContext(ctx)
	numClasses := context.GetParamOr(ctx, mnasnet.ParamNumClasses, mnasnet.DefaultNumClasses)
	model, err := mnasnet.New(numClasses, cfg)
	if err != nil {
		klog.Fatalf("Failed to create model: %+v", err)
	}
	if *flagSummary {
		fmt.Println(planTable(model.Plan(), *flagSize, numClasses))
	}

	if *flagBackend != "" {
		if err := os.Setenv(backends.ConfigEnvVar, *flagBackend); err != nil {
			klog.Warningf("Failed to set backend: %v", err)
		}
	}
	backend := backends.MustNew()
	fmt.Printf("Backend: %s\n", backend.Description())

	images, err := inputTensor(splitPaths(*flagImages), *flagBatch, *flagSize, rand.New(rand.NewPCG(*flagSeed, 0)))
	if err != nil {
		klog.Fatalf("Failed to create input images: %+v", err)
	}
	fmt.Printf("Input: %s\n", images.Shape())

	exec := must.M1(context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		images = mnasnet.PreprocessImages(images, 255)
		logits := model.Apply(ctx, images, false)
		return Softmax(logits, -1)
	}))
	defer exec.Finalize()

	start := time.Now()
	probs, err := exec.Exec1(images)
	if err != nil {
		klog.Fatalf("Failed to run model: %+v", err)
	}
	fmt.Printf("First run (includes compilation): %s\n", commandline.FormatDuration(time.Since(start)))
	fmt.Println(parametersSummary(ctx))

	flat := tensors.MustCopyFlatData[float32](probs)
	for example := range images.Shape().Dimensions[0] {
		fmt.Printf("Image #%d:\n", example)
		for _, score := range topK(flat[example*numClasses:(example+1)*numClasses], *flagTop) {
			fmt.Printf("\tclass %4d: %.4f\n", score.Class, score.Probability)
		}
	}

	if *flagBenchmark > 0 {
		durations := benchmark(*flagBenchmark, func() error {
			_, err := exec.Exec1(images)
			return err
		})
		fmt.Println(benchmarkTable(durations, images.Shape().Dimensions[0]))
	}
}

// classScore is the probability assigned to one class.
type classScore struct {
	Class       int
	Probability float32
}

// topK returns the k classes with the highest probability, sorted from the highest.
func topK(probs []float32, k int) []classScore {
	scores := make([]classScore, len(probs))
	for class, p := range probs {
		scores[class] = classScore{Class: class, Probability: p}
	}
	slices.SortStableFunc(scores, func(a, b classScore) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		}
		return 0
	})
	k = min(max(k, 0), len(scores))
	return scores[:k]
}

// benchmark calls run numRuns times, and returns the duration of each run.
// It stops at the first error.
func benchmark(numRuns int, run func() error) []time.Duration {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		out := termenv.NewOutput(os.Stdout)
		out.HideCursor()
		defer out.ShowCursor()
	}
	bar := progressbar.NewOptions(numRuns,
		progressbar.OptionSetDescription("Benchmark"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("runs"),
		progressbar.OptionSetTheme(commandline.ProgressbarStyle),
		progressbar.OptionClearOnFinish(),
	)
	durations := make([]time.Duration, 0, numRuns)
	for range numRuns {
		start := time.Now()
		if err := run(); err != nil {
			klog.Errorf("Benchmark run failed: %+v", err)
			break
		}
		durations = append(durations, time.Since(start))
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return durations
}

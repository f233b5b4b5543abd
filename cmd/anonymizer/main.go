package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivlev/anonymizer/internal/config"
	"github.com/ivlev/anonymizer/internal/engine"
	"github.com/ivlev/anonymizer/internal/logger"
	"github.com/ivlev/anonymizer/internal/report"
	"github.com/ivlev/anonymizer/internal/system"
)

func main() {
	system.InitResourceLimits()

	configPtr := flag.String("config", "", "YAML config file (detectors, thresholds, obfuscation)")
	inputPtr := flag.String("input", "", "Input directory, searched recursively")
	outputPtr := flag.String("output", "", "Output directory, mirrors the input tree")
	extPtr := flag.String("ext", "jpg,png", "Comma separated file extensions to process (case-sensitive)")
	jsonPtr := flag.Bool("write-json", false, "Write a JSON sidecar with detections next to each output image")
	workersPtr := flag.Int("workers", 0, "Files processed in parallel (0 = from CPU and memory)")
	failFastPtr := flag.Bool("fail-fast", false, "Stop at the first file that fails instead of reporting all failures at the end")
	parallelPtr := flag.Bool("parallel-detectors", false, "Run detectors of different kinds concurrently on each image")
	weightsPtr := flag.String("weights", "", "Directory with weights_<kind>_v<version>.pb model files")
	weightsVersionPtr := flag.String("weights-version", "", "Model weights version (default 1.0.0)")
	faceThresholdPtr := flag.Float64("face-threshold", 0.3, "Detection threshold for faces")
	plateThresholdPtr := flag.Float64("plate-threshold", 0.3, "Detection threshold for license plates")
	obfuscationPtr := flag.String("obfuscation", "blur", "Obfuscation: blur, pixelate, fill")
	kernelPtr := flag.Int("kernel-size", 21, "Gaussian kernel size (odd)")
	sigmaPtr := flag.Float64("sigma", 2, "Gaussian sigma (0 = from kernel size)")
	boxKindPtr := flag.String("box-kind", "ellipse", "Blurred shape inside each region: box, ellipse")
	reportPtr := flag.String("report", "", "Write a YAML run report to this path")
	logDirPtr := flag.String("log-dir", "", "Also write info/warning/error logs to this directory")

	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		log.Fatalf("[-] Config error: %v", err)
	}

	// Flags given on the command line win over the config file and env.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *inputPtr
		case "output":
			cfg.Output = *outputPtr
		case "ext":
			cfg.Extensions = config.SplitList(*extPtr)
		case "write-json":
			cfg.WriteJSON = *jsonPtr
		case "workers":
			cfg.Workers = *workersPtr
		case "fail-fast":
			cfg.FailFast = *failFastPtr
		case "parallel-detectors":
			cfg.ParallelDetectors = *parallelPtr
		case "weights":
			cfg.WeightsDir = *weightsPtr
		case "weights-version":
			cfg.WeightsVersion = *weightsVersionPtr
		case "face-threshold":
			cfg.Thresholds["face"] = *faceThresholdPtr
		case "plate-threshold":
			cfg.Thresholds["plate"] = *plateThresholdPtr
		case "obfuscation":
			cfg.Obfuscation = *obfuscationPtr
		case "kernel-size":
			cfg.ObfuscationParams.KernelSize = *kernelPtr
		case "sigma":
			cfg.ObfuscationParams.Sigma = *sigmaPtr
		case "box-kind":
			cfg.ObfuscationParams.BoxKind = *boxKindPtr
		case "report":
			cfg.Report = *reportPtr
		case "log-dir":
			cfg.LogDir = *logDirPtr
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Config error: %v", err)
	}

	lg, err := logger.New(cfg.LogDir)
	if err != nil {
		log.Fatalf("[-] Logger error: %v", err)
	}
	defer lg.Close()

	if err := run(cfg, lg); err != nil {
		lg.Error("%v", err)
		lg.Close()
		os.Exit(1)
	}

	fmt.Printf("[+++] Success! Result: %s\n", cfg.Output)
}

func run(cfg *config.Config, lg *logger.Logger) error {
	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := engine.NewRunner(pipeline, engine.Options{
		Workers:     cfg.Workers,
		FailFast:    cfg.FailFast,
		JPEGQuality: cfg.JPEGQuality,
		DPI:         cfg.DPI,
	}, lg)

	started := time.Now()
	summary, runErr := runner.Run(ctx, cfg.Input, cfg.Output, cfg.Extensions, cfg.WriteJSON)

	if cfg.Report != "" {
		r := report.New(summary, runErr, cfg.Input, cfg.Output, pipeline.Kinds(), started)
		if err := report.Write(r, cfg.Report); err != nil {
			lg.Warning("Could not write report %s: %v", cfg.Report, err)
		} else {
			lg.Info("Report saved: %s", cfg.Report)
		}
	}

	return runErr
}

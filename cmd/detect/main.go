package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"detectsuite/internal/config"
	"detectsuite/internal/dto"
	"detectsuite/internal/logger"
	"detectsuite/internal/model"
	"detectsuite/internal/services/ai"
	"detectsuite/internal/services/capture"
	"detectsuite/internal/services/pipeline"
	"detectsuite/internal/services/storage"

	"gocv.io/x/gocv"
)

func main() {
	cfg := config.Load()

	mode := flag.String("mode", string(cfg.Mode), "Detection mode: image, video or webcam")
	input := flag.String("input", "", "Image files (comma separated) or a video file")
	output := flag.String("output", "", "Output directory for images, output file for video/webcam")
	threshold := flag.Float64("threshold", cfg.Confidence, "Confidence threshold in [0,1]")
	classes := flag.String("classes", "", "Comma separated class names or ids (default: all)")
	frames := flag.Int("frames", 0, "Stop after this many frames (0 = no limit)")
	device := flag.Int("device", cfg.CameraDevice, "Camera device index")
	flag.Parse()

	m, err := config.ParseMode(*mode)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}
	if *threshold < 0 || *threshold > 1 {
		log.Fatalf("Threshold must be within [0,1], got %v", *threshold)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Close()

	detector, err := ai.New(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to load detector: %v", err)
	}
	defer detector.Close()

	p, err := pipeline.New(detector, appLogger)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	selected := p.Catalog().All()
	if *classes != "" {
		selected, err = p.Catalog().Select(strings.Split(*classes, ","))
		if err != nil {
			log.Fatalf("Invalid classes: %v", err)
		}
	}
	opts := pipeline.Options{Selected: selected, Threshold: *threshold}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	staging := storage.NewStagingService(cfg, appLogger)

	var summary pipeline.Summary
	switch m {
	case config.ModeImage:
		summary, err = detectImages(ctx, p, staging, *input, *output, opts)
	case config.ModeVideo:
		if *input == "" {
			log.Fatalf("Video mode needs -input")
		}
		video, openErr := capture.OpenVideoFile(*input)
		if openErr != nil {
			log.Fatalf("Failed to open video: %v", openErr)
		}
		fmt.Printf("Processing %s (%d frames)\n", *input, video.FrameCount())
		summary, err = detectStream(ctx, cancel, p, video, video.FPS(), *output, *frames, opts)
	case config.ModeWebcam:
		camera, openErr := capture.OpenCamera(*device)
		if openErr != nil {
			log.Fatalf("Failed to open camera: %v", openErr)
		}
		fmt.Printf("Streaming camera %d, press Ctrl+C to stop\n", *device)
		summary, err = detectStream(ctx, cancel, p, camera, 0, *output, *frames, opts)
	}
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}

	fmt.Printf("Done: %d processed, %d skipped", summary.Processed, summary.Skipped)
	if summary.Cancelled {
		fmt.Printf(" (stopped)")
	}
	fmt.Println()
}

// detectImages runs every input image and exports annotated PNGs named
// detected_<name>.png into outDir.
func detectImages(ctx context.Context, p *pipeline.Pipeline, staging *storage.StagingService, input, outDir string, opts pipeline.Options) (pipeline.Summary, error) {
	if input == "" {
		return pipeline.Summary{}, fmt.Errorf("image mode needs -input")
	}

	var images []capture.EncodedImage
	for _, path := range strings.Split(input, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return pipeline.Summary{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		images = append(images, capture.EncodedImage{Name: filepath.Base(path), Data: data})
	}
	set := capture.NewImageSet(images...)

	sink := pipeline.SinkFuncs{
		OnFrame: func(res *model.FrameResult) error {
			name := set.Name(res.Index)
			fmt.Printf("%s: %s\n", name, pipeline.FormatCounts(res.Counts))
			if outDir == "" {
				return nil
			}
			data, err := capture.Encode(res.Annotated, gocv.PNGFileExt)
			if err != nil {
				return err
			}
			return staging.Export(filepath.Join(outDir, dto.DownloadName(name)), data)
		},
		OnSkip: func(index int, err error) {
			fmt.Printf("%s: skipped (%v)\n", set.Name(index), err)
		},
	}
	return p.Run(ctx, set, opts, sink)
}

// detectStream prints counts per frame and optionally writes the annotated
// frames to a video file. limit > 0 stops the stream after that many frames.
func detectStream(ctx context.Context, cancel context.CancelFunc, p *pipeline.Pipeline, src pipeline.Source, fps float64, outPath string, limit int, opts pipeline.Options) (pipeline.Summary, error) {
	var writer *capture.VideoWriter
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			src.Close()
			return pipeline.Summary{}, fmt.Errorf("failed to create output directory: %w", err)
		}
		writer = capture.NewVideoWriter(outPath, "mp4v", fps)
		defer writer.Close()
	}

	seen := 0
	countFrame := func() {
		seen++
		if limit > 0 && seen >= limit {
			cancel()
		}
	}

	sink := pipeline.SinkFuncs{
		OnFrame: func(res *model.FrameResult) error {
			defer countFrame()
			fmt.Printf("frame %d: %s\n", res.Index, pipeline.FormatCounts(res.Counts))
			if writer == nil {
				return nil
			}
			return writer.Write(res.Annotated)
		},
		OnSkip: func(index int, err error) {
			defer countFrame()
			fmt.Printf("frame %d: skipped (%v)\n", index, err)
		},
	}
	return p.Run(ctx, src, opts, sink)
}

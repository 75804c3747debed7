package main

import (
	"colordiff/internal/codec"
	"colordiff/internal/config"
	diffimage "colordiff/internal/diff/image"
	"colordiff/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type DiffOutput struct {
	DiffPath   string  `json:"diffPath"`
	DiffAmount float64 `json:"diffAmount"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

type options struct {
	image1           string
	image2           string
	output           string
	threshold        int
	adjustBrightness bool
	alignment        string
	quality          int
	directory        string
	debug            bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitError
	}

	var o options
	flags := flag.NewFlagSet("diff", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&o.image1, "image1", "", "Path or URL of the first image (required)")
	flags.StringVar(&o.image2, "image2", "", "Path or URL of the second image (required)")
	flags.StringVar(&o.output, "output", "", "Path of the difference image; the format follows the extension (required)")
	flags.IntVar(&o.threshold, "threshold", config.EnvOrDefault("THRESHOLD", 0), "Channel difference above which a pixel is highlighted (0-255)")
	flags.BoolVar(&o.adjustBrightness, "adjust_brightness", config.EnvOrDefault("ADJUST_BRIGHTNESS", true), "Match average brightness before comparing")
	flags.StringVar(&o.alignment, "alignment", config.EnvOrDefault("ALIGNMENT", diffimage.AlignPairwise.String()), "How differently sized images are aligned (pairwise or independent)")
	flags.IntVar(&o.quality, "quality", config.EnvOrDefault("JPEG_QUALITY", codec.DefaultJPEGQuality), "JPEG quality of the difference image (1-100)")
	flags.StringVar(&o.directory, "directory", config.EnvOrDefault("DIRECTORY", "."), "Directory relative paths are resolved against")
	flags.BoolVar(&o.debug, "debug", config.EnvOrDefault("DEBUG", false), "Write human readable logs")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if missing := o.missing(); len(missing) > 0 {
		fmt.Fprintf(stderr, "missing required flag(s): %s\n", strings.Join(missing, ", "))
		flags.Usage()
		return exitUsage
	}

	diffOptions, format, err := o.validate()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		flags.Usage()
		return exitUsage
	}

	logger, err := config.NewLogger(stderr, o.debug)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitError
	}

	fileStorage, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: o.directory,
	})
	if err != nil {
		logger.Error("failed to create storage backend", "error", err)
		return exitError
	}
	s := &storage.Router{
		File: fileStorage,
		NewS3: func(ctx context.Context) (storage.Storage, error) {
			return storage.NewS3Storage(ctx, storage.S3Config{
				Bucket: os.Getenv("S3_BUCKET"),
			})
		},
	}

	output, err := compare(ctx, s, o, diffOptions, format, logger)
	if err != nil {
		logger.Error("failed to compare images", "error", err)
		return exitError
	}

	logger.Info("difference image saved", "path", output.DiffPath, "diffAmount", output.DiffAmount)

	if err := json.NewEncoder(stdout).Encode(output); err != nil {
		logger.Error("failed to encode result", "error", err)
		return exitError
	}

	return exitOK
}

func (o *options) missing() []string {
	var missing []string
	if o.image1 == "" {
		missing = append(missing, "-image1")
	}
	if o.image2 == "" {
		missing = append(missing, "-image2")
	}
	if o.output == "" {
		missing = append(missing, "-output")
	}
	return missing
}

func (o *options) validate() (diffimage.Options, codec.Format, error) {
	threshold, err := config.ParseThreshold(o.threshold)
	if err != nil {
		return diffimage.Options{}, "", err
	}

	alignment, err := diffimage.ParseAlignmentPolicy(o.alignment)
	if err != nil {
		return diffimage.Options{}, "", err
	}

	if o.quality < 1 || o.quality > 100 {
		return diffimage.Options{}, "", xerrors.Errorf("quality must be within [1, 100]: %d", o.quality)
	}

	format, err := codec.FormatFromPath(o.output)
	if err != nil {
		return diffimage.Options{}, "", err
	}

	return diffimage.Options{
		Threshold:        threshold,
		AdjustBrightness: o.adjustBrightness,
		Alignment:        alignment,
	}, format, nil
}

func compare(ctx context.Context, s storage.Storage, o options, diffOptions diffimage.Options, format codec.Format, logger *slog.Logger) (*DiffOutput, error) {
	var image1, image2 image.Image
	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			img, err := loadImage(ctx, s, o.image1)
			if err != nil {
				return xerrors.Errorf("failed to load image1: %w", err)
			}
			image1 = img
			return nil
		})

		eg.Go(func() error {
			img, err := loadImage(ctx, s, o.image2)
			if err != nil {
				return xerrors.Errorf("failed to load image2: %w", err)
			}
			image2 = img
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	logger.Debug("loaded images",
		"image1", o.image1, "image1Size", image1.Bounds().Size().String(),
		"image2", o.image2, "image2Size", image2.Bounds().Size().String(),
	)

	differ := diffimage.NewHighlightDiff(diffOptions).WithLogger(logr.FromSlogHandler(logger.Handler()))
	diffResult, err := differ.Calculate(image1, image2)
	if err != nil {
		return nil, xerrors.Errorf("failed to calculate diff: %w", err)
	}

	data, err := codec.EncodeBytes(diffResult.Image, format, codec.EncodeOptions{Quality: o.quality})
	if err != nil {
		return nil, xerrors.Errorf("failed to encode diff image: %w", err)
	}

	diffPath, err := s.Put(ctx, o.output, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to save diff image: %w", err)
	}

	return &DiffOutput{
		DiffPath:   diffPath,
		DiffAmount: diffResult.DiffAmount,
		Width:      diffResult.Image.Bounds().Dx(),
		Height:     diffResult.Image.Bounds().Dy(),
	}, nil
}

func loadImage(ctx context.Context, s storage.Storage, path string) (image.Image, error) {
	data, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	img, _, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}

	return img, nil
}

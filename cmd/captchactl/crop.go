package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tutortoise/captcha-solver-service/captcha"
	"github.com/Tutortoise/captcha-solver-service/detections"
	"github.com/Tutortoise/captcha-solver-service/models"
)

const (
	defaultTileSize       = 105
	defaultCropConfidence = 0.51
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".tiff", ".bmp"}

// tile is one resized detection ready to be written.
type tile struct {
	name string
	img  image.Image
}

// listImages returns the image files directly inside dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		return filepath.Join(dir, e.Name()), !e.IsDir() && lo.Contains(imageExtensions, ext)
	})
	return files, nil
}

// cutTiles crops every detection out of img and resizes it to size x size.
// Tiles are named <base>_<label>_<index><ext>.
func cutTiles(img image.Image, file string, dets []models.Detection, size int) ([]tile, error) {
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(filepath.Base(file), ext)

	tiles := make([]tile, 0, len(dets))
	for i, d := range dets {
		crop, err := captcha.Crop(img, d.BBox)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile{
			name: fmt.Sprintf("%s_%s_%d%s", base, d.Label, i, ext),
			img:  imaging.Resize(crop, size, size, imaging.Linear),
		})
	}
	return tiles, nil
}

type detectFunc func(ctx context.Context, img image.Image) ([]models.Detection, error)

// cropDir writes the tiles of every image in input to output and returns how
// many were written. Images that fail to load or detect are logged and
// skipped.
func cropDir(ctx context.Context, input, output string, size, parallel int, detect detectFunc, logger *zap.SugaredLogger) (int, error) {
	if err := os.MkdirAll(output, 0o755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", output)
	}
	files, err := listImages(input)
	if err != nil {
		return 0, err
	}

	var written int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for _, file := range files {
		g.Go(func() error {
			img, err := imaging.Open(file)
			if err != nil {
				logger.Warnw("skipping unreadable image", "file", file, "error", err)
				return nil
			}
			dets, err := detect(ctx, img)
			if err != nil {
				logger.Warnw("skipping image", "file", file, "error", err)
				return nil
			}
			tiles, err := cutTiles(img, file, dets, size)
			if err != nil {
				logger.Warnw("skipping image", "file", file, "error", err)
				return nil
			}
			var errs error
			for _, t := range tiles {
				if err := imaging.Save(t.img, filepath.Join(output, t.name)); err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				atomic.AddInt64(&written, 1)
			}
			return errs
		})
	}
	err = g.Wait()
	return int(written), err
}

func cropAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	labels, err := captcha.LoadLabels(c.String(flagLabels))
	if err != nil {
		return err
	}
	confidence := float32(c.Float64(flagConfidence))

	return withEnvironment(c, logger, func() (err error) {
		detector, err := openDetector(c, logger)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, detector.Close()) }()

		detect := func(ctx context.Context, img image.Image) ([]models.Detection, error) {
			return detector.Detect(ctx, img, labels, confidence, detections.DefaultIoU)
		}
		n, err := cropDir(c.Context, c.String(flagInput), c.String(flagOutput), c.Int(flagSize), c.Int(flagParallel), detect, logger)
		logger.Infow("all images processed", "tiles", n)
		return err
	})
}

// Package main is captchactl, which runs the captcha models from the command
// line.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/detections"
	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/logging"
)

const (
	flagYolo       = "yolo"
	flagSiamese    = "siamese"
	flagLabels     = "labels"
	flagORTLibrary = "ort-library"
	flagThreads    = "threads"
	flagConfidence = "confidence"
	flagIoU        = "iou"
	flagAnnotate   = "annotate"
	flagInput      = "input"
	flagOutput     = "output"
	flagSize       = "size"
	flagParallel   = "parallel"
	flagDebug      = "debug"
)

func main() {
	app := &cli.App{
		Name:  "captchactl",
		Usage: "solve text select captchas and prepare similarity training data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagYolo,
				Usage:    "path to the detector .onnx graph",
				EnvVars:  []string{"YNS_YOLO_MODEL_PATH"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     flagLabels,
				Usage:    "path to the newline-delimited label file",
				EnvVars:  []string{"YNS_LABEL_PATH"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    flagORTLibrary,
				Usage:   "path to the onnxruntime shared library",
				EnvVars: []string{"YNS_ORT_LIBRARY_PATH"},
			},
			&cli.IntFlag{
				Name:    flagThreads,
				Usage:   "threads per model session (0 picks from the CPU count)",
				EnvVars: []string{"YNS_THREADS"},
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Usage:   "log at debug level",
				EnvVars: []string{"DEBUG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "solve",
				Usage:     "print the targets of one captcha in click order",
				ArgsUsage: "<image>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagSiamese,
						Usage:    "path to the similarity .onnx graph",
						EnvVars:  []string{"YNS_SIAMESE_MODEL_PATH"},
						Required: true,
					},
					&cli.Float64Flag{Name: flagConfidence, Value: detections.DefaultConfidence, Usage: "minimum class score"},
					&cli.Float64Flag{Name: flagIoU, Value: detections.DefaultIoU, Usage: "NMS overlap threshold"},
					&cli.StringFlag{Name: flagAnnotate, Usage: "write the annotated image to this path"},
				},
				Action: solveAction,
			},
			{
				Name:  "crop",
				Usage: "cut every detection in a directory of captchas into fixed-size tiles",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagInput, Usage: "directory of captcha images", Required: true},
					&cli.StringFlag{Name: flagOutput, Usage: "directory to write tiles to", Required: true},
					&cli.IntFlag{Name: flagSize, Value: defaultTileSize, Usage: "tile width and height"},
					&cli.Float64Flag{Name: flagConfidence, Value: defaultCropConfidence, Usage: "minimum class score"},
					&cli.IntFlag{Name: flagParallel, Value: 4, Usage: "images processed at once"},
				},
				Action: cropAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) (*zap.SugaredLogger, error) {
	return logging.NewLogger("captchactl", logging.Options{Debug: c.Bool(flagDebug)})
}

// withEnvironment runs fn between loading and unloading onnxruntime.
func withEnvironment(c *cli.Context, logger *zap.SugaredLogger, fn func() error) (err error) {
	if err := engine.InitializeEnvironment(c.String(flagORTLibrary), logger); err != nil {
		return err
	}
	defer func() {
		if destroyErr := engine.DestroyEnvironment(); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}()
	return fn()
}

func openGuard(c *cli.Context, name, path string, logger *zap.SugaredLogger) (*engine.Guard, error) {
	session, err := engine.OpenONNX(path, engine.Options{IntraOpThreads: c.Int(flagThreads)}, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", name)
	}
	return engine.NewGuard(name, session, logger), nil
}

func openDetector(c *cli.Context, logger *zap.SugaredLogger) (*detections.Detector, error) {
	guard, err := openGuard(c, "yolo", c.String(flagYolo), logger)
	if err != nil {
		return nil, err
	}
	d, err := detections.NewDetector(guard, logger)
	if err != nil {
		guard.Close()
		return nil, err
	}
	return d, nil
}

package main

import (
	"encoding/json"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/Tutortoise/captcha-solver-service/captcha"
	"github.com/Tutortoise/captcha-solver-service/detections"
)

func solveAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("solve needs exactly one image")
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	labels, err := captcha.LoadLabels(c.String(flagLabels))
	if err != nil {
		return err
	}
	img, err := imaging.Open(c.Args().First())
	if err != nil {
		return errors.Wrap(err, "opening image")
	}

	return withEnvironment(c, logger, func() (err error) {
		detector, err := openDetector(c, logger)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, detector.Close()) }()

		guard, err := openGuard(c, "siamese", c.String(flagSiamese), logger)
		if err != nil {
			return err
		}
		siamese, err := detections.NewSiamese(guard, logger)
		if err != nil {
			return multierr.Append(err, guard.Close())
		}
		defer func() { err = multierr.Append(err, siamese.Close()) }()

		solver, err := captcha.NewSolver(detector, siamese, labels, logger)
		if err != nil {
			return err
		}
		solver.Confidence = float32(c.Float64(flagConfidence))
		solver.IoU = float32(c.Float64(flagIoU))

		targets, err := solver.Solve(c.Context, img)
		if err != nil {
			return err
		}

		if path := c.String(flagAnnotate); path != "" {
			if err := imaging.Save(captcha.Annotate(img, targets), path); err != nil {
				return errors.Wrap(err, "saving annotated image")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(targets)
	})
}

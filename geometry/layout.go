package geometry

import (
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Channels is the number of colour planes fed to the models.
const Channels = 3

// Normalize converts img to an interleaved BGR float buffer (HWC) with every
// intensity scaled into [0,1]. The models were trained on OpenCV-decoded
// images, which are blue first. Grayscale inputs are expanded to three
// channels. Rows are split across workers.
func Normalize(img image.Image) ([]float32, int, int) {
	src, ok := img.(*image.NRGBA)
	if !ok || src.Rect.Min != (image.Point{}) {
		src = imaging.Clone(img)
	}
	width, height := src.Rect.Dx(), src.Rect.Dy()
	buffer := make([]float32, width*height*Channels)

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers < 1 {
		return buffer, width, height
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = height
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row := src.Pix[y*src.Stride : y*src.Stride+width*4]
				offset := y * width * Channels
				for x := 0; x < width; x++ {
					i := offset + x*Channels
					buffer[i] = float32(row[x*4+2]) / 255.0
					buffer[i+1] = float32(row[x*4+1]) / 255.0
					buffer[i+2] = float32(row[x*4]) / 255.0
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	return buffer, width, height
}

// HWC2CHW reorders a row-major height x width x channels buffer into
// channels x height x width. The input slice is not modified.
func HWC2CHW(data []float32, height, width, channels int) ([]float32, error) {
	if len(data) != height*width*channels {
		return nil, errors.Errorf("hwc buffer has %d values, want %dx%dx%d", len(data), height, width, channels)
	}
	out := make([]float32, len(data))
	copy(out, data)
	if channels == 1 || height*width == 1 {
		return out, nil
	}

	t := tensor.New(tensor.WithShape(height, width, channels), tensor.WithBacking(out))
	if err := t.T(2, 0, 1); err != nil {
		return nil, errors.Wrap(err, "hwc to chw")
	}
	if err := t.Transpose(); err != nil {
		return nil, errors.Wrap(err, "hwc to chw")
	}
	return t.Data().([]float32), nil
}

// Transpose2D swaps the axes of a row-major rows x cols matrix.
func Transpose2D(data []float32, rows, cols int) ([]float32, error) {
	if len(data) != rows*cols {
		return nil, errors.Errorf("matrix has %d values, want %dx%d", len(data), rows, cols)
	}
	out := make([]float32, len(data))
	copy(out, data)
	if rows == 1 || cols == 1 {
		return out, nil
	}

	t := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(out))
	if err := t.T(); err != nil {
		return nil, errors.Wrap(err, "transpose")
	}
	if err := t.Transpose(); err != nil {
		return nil, errors.Wrap(err, "transpose")
	}
	return t.Data().([]float32), nil
}

package engine

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// InitializeEnvironment loads the ONNX Runtime shared library. An empty
// libraryPath leaves the platform default in place.
func InitializeEnvironment(libraryPath string, logger *zap.SugaredLogger) error {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initializing onnxruntime environment")
	}
	logger.Infow("onnxruntime ready",
		"library", libraryPath,
		"goarch", runtime.GOARCH,
		"avx", cpu.X86.HasAVX,
		"avx2", cpu.X86.HasAVX2,
		"avx512", cpu.X86.HasAVX512,
		"asimd", cpu.ARM64.HasASIMD,
	)
	return nil
}

// DestroyEnvironment unloads ONNX Runtime. Every session must be closed first.
func DestroyEnvironment() error {
	return ort.DestroyEnvironment()
}

// DefaultThreads is the per-session thread count used when none is
// configured. Without any vector extension, oversubscribing the cores only
// adds contention, so half of them are used.
func DefaultThreads() int {
	n := runtime.NumCPU()
	if runtime.GOARCH == "amd64" && !cpu.X86.HasAVX2 && n > 1 {
		return n / 2
	}
	return n
}

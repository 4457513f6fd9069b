//go:build windows

package device

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"
)

// GPUJob is a Job that can also run on the WebGPU backend.
type GPUJob interface {
	Job
	WebGPU(backend *autodiff.Backend[*webgpu.Backend]) error
}

// probeAdapter requests the default adapter. It is used instead of
// webgpu.IsAvailable because the adapter name and vendor are logged.
// wgpu panics when the native library is missing.
func probeAdapter() (info wgpu.AdapterInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webgpu native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return wgpu.AdapterInfo{}, err
	}
	defer adapter.Release()
	return adapter.GetInfo(), nil
}

var webGPUAvailable = func() bool {
	_, err := probeAdapter()
	return err == nil
}

func runWebGPU(job Job, logger klog.Logger) error {
	gpuJob, ok := job.(GPUJob)
	if !ok {
		logger.Info("Job has no WebGPU variant, using CPU")
		return Run(CPU, job, logger)
	}

	info, err := probeAdapter()
	if err != nil {
		logger.Info("WebGPU adapter not available, using CPU", "err", err)
		return Run(CPU, job, logger)
	}
	logger.Info("WebGPU adapter", "name", info.Name, "vendor", info.VendorName)

	gpu, err := webgpu.New()
	if err != nil {
		return fmt.Errorf("%w: webgpu: %w", ErrUnavailable, err)
	}
	defer gpu.Release()

	logger.Info("WebGPU backend ready", "backend", gpu.Name())
	return gpuJob.WebGPU(autodiff.New(gpu))
}

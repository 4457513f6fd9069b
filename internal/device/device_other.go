//go:build !windows

package device

import "k8s.io/klog/v2"

// born only ships its WebGPU backend for Windows builds.
var webGPUAvailable = func() bool {
	return false
}

func runWebGPU(job Job, logger klog.Logger) error {
	logger.Info("WebGPU is not supported on this platform, using CPU")
	return Run(CPU, job, logger)
}

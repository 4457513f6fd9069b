//go:build windows

package main

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"
)

func (j *job) WebGPU(backend *autodiff.Backend[*webgpu.Backend]) error {
	return runJob(j, backend)
}

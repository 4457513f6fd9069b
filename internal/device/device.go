// Package device resolves the compute backend once at start-up and hands
// it, wrapped by the autodiff decorator, to the training code.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/klauspost/cpuid/v2"
	"k8s.io/klog/v2"
)

// ErrUnavailable is returned when a requested device cannot be used.
var ErrUnavailable = errors.New("device unavailable")

// Kind identifies a compute device.
type Kind int

// Devices.
const (
	Auto Kind = iota // WebGPU when available, CPU otherwise
	CPU
	WebGPU
)

// String returns the device name as accepted by ParseKind.
func (k Kind) String() string {
	switch k {
	case Auto:
		return "auto"
	case CPU:
		return "cpu"
	case WebGPU:
		return "webgpu"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a device name, case-insensitively. The empty string is
// Auto.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "cpu":
		return CPU, nil
	case "webgpu", "gpu":
		return WebGPU, nil
	default:
		return Auto, fmt.Errorf("unknown device %q (want auto, cpu or webgpu)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Job is the training work to run on the selected device. Implementations
// usually forward to one generic function instantiated per backend.
//
// On Windows a Job may also implement GPUJob; without it, WebGPU requests
// fall back to the CPU.
type Job interface {
	CPU(backend *autodiff.Backend[*cpu.Backend]) error
}

// Select resolves prefer to a concrete device and logs the host CPU.
// Auto picks WebGPU when it is available; an explicit WebGPU request falls
// back to the CPU with a warning when it is not.
func Select(prefer Kind, logger klog.Logger) Kind {
	logger.Info("Host CPU",
		"brand", cpuid.CPU.BrandName,
		"physicalCores", cpuid.CPU.PhysicalCores,
		"logicalCores", cpuid.CPU.LogicalCores,
		"avx2", cpuid.CPU.Supports(cpuid.AVX2),
		"avx512f", cpuid.CPU.Supports(cpuid.AVX512F),
		"neon", cpuid.CPU.Supports(cpuid.ASIMD))

	selected := CPU
	switch prefer {
	case Auto:
		if webGPUAvailable() {
			selected = WebGPU
		}
	case WebGPU:
		if webGPUAvailable() {
			selected = WebGPU
		} else {
			logger.Info("WebGPU requested but not available, using CPU")
		}
	}
	logger.Info("Selected compute device", "device", selected)
	return selected
}

// Run executes job on kind. Auto and WebGPU are resolved first with Select,
// so a WebGPU request on a host without an adapter runs on the CPU.
func Run(kind Kind, job Job, logger klog.Logger) error {
	if kind == Auto || kind == WebGPU {
		kind = Select(kind, logger)
	}
	switch kind {
	case CPU:
		return job.CPU(autodiff.New(cpu.New()))
	case WebGPU:
		return runWebGPU(job, logger)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, kind)
	}
}

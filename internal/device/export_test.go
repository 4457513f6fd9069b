package device

// SetWebGPUAvailable overrides the WebGPU availability check until the
// returned function is called.
func SetWebGPUAvailable(ok bool) (restore func()) {
	prev := webGPUAvailable
	webGPUAvailable = func() bool { return ok }
	return func() { webGPUAvailable = prev }
}

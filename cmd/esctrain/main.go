// Command esctrain trains environmental sound classifiers on the ESC
// datasets.
//
// Usage:
//
//	esctrain [-config job.yaml] [-device cpu] [-epochs N] [-data DIR]
//	esctrain version
//
// Every model listed in the configuration is trained in turn on the same
// train/valid/test split, then evaluated on the test set. Checkpoints are
// written under models_saved/ unless the configuration says otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/gabriellecaillaud/wildfire-detection/internal/config"
	"github.com/gabriellecaillaud/wildfire-detection/internal/device"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("esctrain %s\n", version)
		return
	}

	klog.InitFlags(nil)
	configPath := flag.String("config", "", "YAML job configuration; built-in defaults when empty")
	deviceName := flag.String("device", "", "Compute device override: auto, cpu or webgpu")
	epochs := flag.Int("epochs", 0, "Override the number of training epochs")
	dataRoot := flag.String("data", "", "Override the dataset root directory")
	flag.Parse()

	if err := run(*configPath, *deviceName, *epochs, *dataRoot); err != nil {
		klog.ErrorS(err, "Training failed")
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func run(configPath, deviceName string, epochs int, dataRoot string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if deviceName != "" {
		kind, err := device.ParseKind(deviceName)
		if err != nil {
			return err
		}
		cfg.Device = kind
	}
	if epochs > 0 {
		cfg.Training.Epochs = epochs
	}
	if dataRoot != "" {
		cfg.Dataset.Root = dataRoot
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := klog.Background()
	return device.Run(cfg.Device, &job{ctx: ctx, cfg: cfg, logger: logger}, logger)
}

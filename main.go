// Command pillcam watches a dispensing tray through a camera, counts
// pills with a YOLO model and announces when the count holds at the
// configured target. Annotated frames can be recorded to disk and
// pipeline counters are served over a Prometheus endpoint.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pillcam/capture"
	"pillcam/config"
	"pillcam/detection"
	"pillcam/metrics"
	"pillcam/modelpack"
	"pillcam/notify"
	"pillcam/pipeline"
	"pillcam/stability"
)

var (
	configPath  = flag.String("config", config.DefaultPath, "Path to the settings file")
	device      = flag.Int("device", -1, "Camera device index (overrides the settings file)")
	modelPath   = flag.String("model", "", "YOLO weights file, .onnx or packed .rp (overrides the settings file)")
	classesPath = flag.String("classes", "", "Class names file, .yaml or plain text (overrides the settings file)")
	confidence  = flag.Float64("confidence", -1, "Detection confidence threshold, 0-1 (overrides the settings file)")
	target      = flag.Int("target", -1, "Pill count that triggers the announcement, 0 disables (overrides the settings file)")
	recordDir   = flag.String("record-dir", "", "Directory for recorded clips (overrides the settings file)")
	metricsAddr = flag.String("metrics", "", "Prometheus listen address, e.g. :9100 (overrides the settings file)")
	record      = flag.Bool("record", false, "Start recording immediately")
	noDetect    = flag.Bool("no-detect", false, "Start with inference switched off")
	budget      = flag.Duration("budget", detection.DefaultBudget, "Per-tick inference time budget")
	debugMode   = flag.Bool("debug", false, "Enable debug logging")
)

var log = logrus.WithField("component", "main")

func main() {
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Load(*configPath)
	applyOverrides(cfg)

	detector, err := buildDetector(cfg, *budget)
	if err != nil {
		log.Fatalf("detector: %v", err)
	}

	var notifier pipeline.Notifier
	if sink, err := notify.NewExecSink(); err != nil {
		log.Warnf("no speech backend found, announcements disabled: %v", err)
		notifier = notify.NewDispatcher(nil)
	} else {
		notifier = notify.NewDispatcher(sink)
	}

	counters := &metrics.Counters{}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr, counters); err != nil {
				log.Warnf("metrics server: %v", err)
			}
		}()
	}

	session := pipeline.New(pipeline.Options{
		Config:   cfg,
		Source:   capture.NewSource(cfg.CameraIndex, cfg.FrameWidth, cfg.FrameHeight, cfg.CaptureFPS),
		Detector: detector,
		Monitor:  stability.New(),
		Notifier: notifier,
		Counters: counters,
	})
	session.SetDetecting(detector != nil && !*noDetect)

	if *record {
		if err := session.StartRecording(); err != nil {
			log.Warnf("recording: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, shutting down", sig)
		cancel()
	}()

	runErr := session.Run(ctx)
	notifier.Stop()

	if detector != nil {
		if err := detector.Close(); err != nil {
			log.Warnf("detector close: %v", err)
		}
	}
	if err := cfg.Save(*configPath); err != nil {
		log.Warnf("settings not saved: %v", err)
	}
	if runErr != nil {
		log.Fatalf("pipeline: %v", runErr)
	}
}

// applyOverrides copies set command line flags over the loaded settings.
func applyOverrides(cfg *config.Settings) {
	if *device >= 0 {
		cfg.CameraIndex = *device
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *classesPath != "" {
		cfg.ClassesPath = *classesPath
	}
	if *confidence >= 0 {
		cfg.SetConfidence(float32(*confidence))
	}
	if *target >= 0 {
		cfg.SetTargetCount(*target)
	}
	if *recordDir != "" {
		cfg.RecordDir = *recordDir
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
}

// buildDetector loads the model named in the settings, unpacking .rp
// containers to a temporary file first, and wraps it with the per-tick
// budget. A missing model path means no inference, not an error.
func buildDetector(cfg *config.Settings, budget time.Duration) (detection.Detector, error) {
	if cfg.ModelPath == "" {
		log.Warn("no model configured, inference disabled")
		return nil, nil
	}

	weights := cfg.ModelPath
	if strings.EqualFold(filepath.Ext(weights), ".rp") || modelpack.IsPacked(weights) {
		tmp, err := os.CreateTemp("", "pillcam-model-*.onnx")
		if err != nil {
			return nil, err
		}
		tmp.Close()
		if err := modelpack.Unpack(weights, tmp.Name()); err != nil {
			os.Remove(tmp.Name())
			return nil, err
		}
		weights = tmp.Name()
		log.Infof("model unpacked to %s", weights)
	}

	yolo, err := detection.NewYOLO(detection.YOLOOptions{
		WeightsPath: weights,
		ClassesPath: cfg.ClassesPath,
	})
	if err != nil {
		return nil, err
	}
	return detection.NewBudgeted(yolo, budget), nil
}

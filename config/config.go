// Package config persists the tool settings as a JSON document. Reads
// never fail — anything unreadable falls back to defaults — while save
// failures are returned so the caller can tell the operator.
package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "config")

// DefaultPath is where settings live unless the caller says otherwise.
const DefaultPath = "pillcam.json"

// Settings is the persisted configuration document.
type Settings struct {
	mu sync.RWMutex

	CameraIndex int     `json:"camera_index"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
	CaptureFPS  float64 `json:"capture_fps"`
	RecordFPS   float64 `json:"record_fps"`

	Confidence  float32 `json:"confidence"`
	TargetCount int     `json:"target_count"`

	ModelPath   string `json:"model"`
	ClassesPath string `json:"classes"`

	AnnouncePrefix string `json:"announce_prefix"`
	RecordDir      string `json:"record_dir"`
	MetricsAddr    string `json:"metrics_addr"`
}

// Defaults mirrors the original tool: 800x600 at 30fps capture, 20fps
// recordings, 0.5 confidence, target feature disabled.
func Defaults() *Settings {
	return &Settings{
		CameraIndex: 0,
		FrameWidth:  800,
		FrameHeight: 600,
		CaptureFPS:  30,
		RecordFPS:   20,
		Confidence:  0.5,
		TargetCount: 0,
		RecordDir:   "recordings",
	}
}

// Load reads settings from path. A missing or unparsable file yields
// defaults; the problem is logged, never returned.
func Load(path string) *Settings {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("could not read %s, using defaults: %v", path, err)
		}
		return s
	}
	if err := json.Unmarshal(data, s); err != nil {
		log.Warnf("could not parse %s, using defaults: %v", path, err)
		return Defaults()
	}
	s.normalize()
	return s
}

// Save writes the document. The error is the caller's to surface.
func (s *Settings) Save(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func (s *Settings) normalize() {
	if s.TargetCount < 0 {
		s.TargetCount = 0
	}
	if s.FrameWidth <= 0 || s.FrameHeight <= 0 {
		s.FrameWidth = 800
		s.FrameHeight = 600
	}
	if s.CaptureFPS <= 0 {
		s.CaptureFPS = 30
	}
	if s.RecordFPS <= 0 {
		s.RecordFPS = 20
	}
	if s.Confidence <= 0 || s.Confidence > 1 {
		s.Confidence = 0.5
	}
}

// GetTargetCount returns the configured target (0 = disabled).
func (s *Settings) GetTargetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TargetCount
}

// SetTargetCount stores a new target, clamping negatives to 0.
func (s *Settings) SetTargetCount(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.TargetCount = n
	s.mu.Unlock()
}

// GetConfidence returns the detection confidence threshold.
func (s *Settings) GetConfidence() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Confidence
}

// SetConfidence stores a new threshold; out-of-range values are ignored.
func (s *Settings) SetConfidence(c float32) {
	if c <= 0 || c > 1 {
		return
	}
	s.mu.Lock()
	s.Confidence = c
	s.mu.Unlock()
}

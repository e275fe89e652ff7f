package notify

import (
	"os/exec"
	"sync"

	"github.com/pkg/errors"
)

// speakCandidates are tried in order when locating a TTS binary.
var speakCandidates = []string{"espeak-ng", "espeak", "say"}

// chimeArgs plays a 1 kHz, 300 ms tone through ffplay's lavfi input.
var chimeArgs = []string{
	"-nodisp", "-autoexit", "-loglevel", "quiet",
	"-f", "lavfi", "-i", "sine=frequency=1000:duration=0.3",
}

// ExecSink speaks by running a TTS subprocess per utterance and chimes
// through ffplay. It is the production Sink; anything fancier (a real
// audio stack) plugs in behind the same interface.
type ExecSink struct {
	speakBin string
	chimeBin string

	mu      sync.Mutex
	current *exec.Cmd
	halted  bool
}

// NewExecSink locates the TTS and chime binaries. Returns an error when no
// TTS binary exists; the caller is expected to fall back to a nil sink so
// detection keeps running without audio.
func NewExecSink() (*ExecSink, error) {
	s := &ExecSink{}
	for _, name := range speakCandidates {
		if path, err := exec.LookPath(name); err == nil {
			s.speakBin = path
			break
		}
	}
	if s.speakBin == "" {
		return nil, errors.New("no speech binary found (tried espeak-ng, espeak, say)")
	}
	if path, err := exec.LookPath("ffplay"); err == nil {
		s.chimeBin = path
	}
	return s, nil
}

// Speak starts the utterance and invokes done when the subprocess exits.
func (s *ExecSink) Speak(text string, done func()) error {
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return errors.New("sink halted")
	}
	cmd := exec.Command(s.speakBin, text)
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "start speech process")
	}
	s.current = cmd
	s.mu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debugf("speech process exited: %v", err)
		}
		s.mu.Lock()
		if s.current == cmd {
			s.current = nil
		}
		s.mu.Unlock()
		done()
	}()
	return nil
}

// Chime plays the confirmation tone. Fire-and-forget; a missing ffplay
// just means no tone.
func (s *ExecSink) Chime() {
	if s.chimeBin == "" {
		return
	}
	go func() {
		if err := exec.Command(s.chimeBin, chimeArgs...).Run(); err != nil {
			log.Debugf("chime failed: %v", err)
		}
	}()
}

// Shutdown kills any in-flight utterance and refuses further Speak calls.
func (s *ExecSink) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	if s.current != nil && s.current.Process != nil {
		s.current.Process.Kill()
		s.current = nil
	}
}

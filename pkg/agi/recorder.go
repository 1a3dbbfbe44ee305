package agi

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder manages out-of-band recording streams on the call. The switch
// writes audio to disk while the control channel stays free for other
// commands; that file is what the capture and barge-in components poll.
//
// Stream lifecycles are strictly nested: starting a second stream while one
// is active is a programming error and is refused.
type Recorder struct {
	ch     *Channel
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	active *Recording
}

// Recording is one active or stopped recording stream. Path points at the
// inbound-biased (caller side) file; MixedPath holds both directions.
type Recording struct {
	rec     *Recorder
	base    string
	path    string
	mixed   string
	stopped bool
}

// NewRecorder creates a recorder writing under dir.
func NewRecorder(ch *Channel, dir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ch: ch, dir: dir, logger: logger}
}

// StartInbound starts a recording stream whose inbound file holds only the
// caller's audio, never the agent's own playback. The file name embeds a
// timestamp and a random component so concurrent calls on one host never
// collide.
func (r *Recorder) StartInbound(prefix string) (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, NewError(ErrorTypeRecording,
			fmt.Sprintf("recording %q still active, streams must be strictly nested", r.active.base))
	}
	if !r.ch.Session().Connected() {
		return nil, NewError(ErrorTypeDisconnected, "cannot record on disconnected call")
	}

	base := fmt.Sprintf("%s_%d_%s", prefix, time.Now().Unix(), uuid.NewString()[:8])
	rec := &Recording{
		rec:   r,
		base:  base,
		path:  filepath.Join(r.dir, base+"_in.wav"),
		mixed: filepath.Join(r.dir, base+".wav"),
	}

	// r() captures the receive (caller) leg into its own file.
	args := fmt.Sprintf("%s,r(%s)", rec.mixed, rec.path)
	rep := r.ch.Exec("MixMonitor", args)
	if !rep.OK() {
		if rep.Err != nil {
			return nil, WrapError(ErrorTypeRecording, "starting recording stream", rep.Err)
		}
		return nil, NewError(ErrorTypeRecording, fmt.Sprintf("starting recording stream: %s", rep.Raw))
	}

	r.active = rec
	r.logger.Debug("recording stream started", "base", base, "path", rec.path)
	return rec, nil
}

// Path returns the inbound recording file path.
func (rc *Recording) Path() string {
	return rc.path
}

// MixedPath returns the both-directions recording file path.
func (rc *Recording) MixedPath() string {
	return rc.mixed
}

// Stop ends the recording stream. Safe to call more than once; only the
// first call issues the stop command.
func (rc *Recording) Stop() {
	rc.rec.mu.Lock()
	defer rc.rec.mu.Unlock()

	if rc.stopped {
		return
	}
	rc.stopped = true
	if rc.rec.active == rc {
		rc.rec.active = nil
	}

	rep := rc.rec.ch.Exec("StopMixMonitor", "")
	if !rep.OK() {
		rc.rec.logger.Warn("stopping recording stream failed", "base", rc.base, "reply", rep.String())
	}
}

// Cleanup removes the recording files from disk. Removal failures are logged
// and otherwise ignored; stale files are an operational nuisance, not an
// error the call should see.
func (rc *Recording) Cleanup() {
	for _, p := range []string{rc.path, rc.mixed} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			rc.rec.logger.Warn("removing recording file failed", "path", p, "error", err)
		}
	}
}

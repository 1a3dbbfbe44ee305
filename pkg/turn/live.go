package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ringline-go/ringline/pkg/audio"
	"github.com/ringline-go/ringline/pkg/vad"
	"github.com/ringline-go/ringline/pkg/voice/stt"
)

// liveTranscription tails the growing recording into a streaming
// transcription session while capture is still running, so the transcript is
// ready the moment the caller stops talking. Failures anywhere along the way
// just mean the caller falls back to one-shot transcription.
type liveTranscription struct {
	stream       *stt.Stream
	poll         time.Duration
	finalizeWait time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	out      chan string
}

// startLive opens a live session for the recording at path, or returns nil
// when streaming is disabled, unsupported, or unavailable.
func (o *Orchestrator) startLive(ctx context.Context, path string, cfg vad.Config) *liveTranscription {
	if !o.cfg.StreamingASR || o.streams == nil {
		return nil
	}
	stream, err := o.streams.OpenStream(ctx, audio.TelephonySampleRate)
	if err != nil {
		o.logger.Debug("live transcription unavailable", "error", err)
		return nil
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	l := &liveTranscription{
		stream:       stream,
		poll:         poll,
		finalizeWait: 3 * time.Second,
		stop:         make(chan struct{}),
		out:          make(chan string, 1),
	}
	go l.run(path)
	return l
}

func (l *liveTranscription) run(path string) {
	defer l.stream.Close()

	// The session carries raw samples only; the recording's RIFF header
	// stays behind.
	tail := audio.NewTail(path, audio.WAVHeaderSize)
	defer tail.Close()

	var finals []string
	collect := func() {
		for {
			select {
			case d, ok := <-l.stream.Deltas():
				if !ok {
					return
				}
				if d.Final {
					finals = append(finals, d.Text)
				}
			default:
				return
			}
		}
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

feed:
	for {
		select {
		case <-l.stop:
			break feed
		case <-l.stream.Done():
			break feed
		case <-ticker.C:
			chunk, err := tail.Next()
			if err != nil {
				break feed
			}
			if len(chunk) > 0 {
				if err := l.stream.SendAudio(chunk); err != nil {
					break feed
				}
			}
			collect()
		}
	}

	// Ship whatever landed on disk after the last tick, then flush.
	if chunk, err := tail.Next(); err == nil && len(chunk) > 0 {
		l.stream.SendAudio(chunk)
	}
	l.stream.Finalize()
	select {
	case <-l.stream.Done():
	case <-time.After(l.finalizeWait):
		// The worker went quiet after finalize. Deltas only closes once
		// the read loop dies, so the connection has to be cut before the
		// drain below or it never terminates.
		l.stream.Close()
	}
	for d := range l.stream.Deltas() {
		if d.Final {
			finals = append(finals, d.Text)
		}
	}

	if l.stream.Err() != nil {
		l.out <- ""
		return
	}
	l.out <- strings.TrimSpace(strings.Join(finals, " "))
}

// finish ends the session and returns the accumulated transcript. ok is
// false when streaming yielded nothing and the caller should transcribe the
// file instead.
func (l *liveTranscription) finish() (string, bool) {
	l.stopOnce.Do(func() { close(l.stop) })
	select {
	case text := <-l.out:
		return text, text != ""
	case <-time.After(8 * time.Second):
		return "", false
	}
}

// abort discards the session without waiting for a transcript.
func (l *liveTranscription) abort() {
	l.stopOnce.Do(func() { close(l.stop) })
	go func() { <-l.out }()
}

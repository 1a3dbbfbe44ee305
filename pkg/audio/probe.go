// Package audio provides the file-level audio plumbing shared by the capture
// and barge-in components: size probing of recordings being written by the
// switch, tailing of growing files, transcription-format conversion, and a
// minimal WAV writer.
package audio

import "os"

// Sampler reports the current size of an audio source. The capture state
// machine only ever sees this interface, which is what makes its decisions
// reproducible under test.
type Sampler interface {
	// Size returns the current size in bytes. A missing or unreadable file
	// reads as zero, indistinguishable from silence.
	Size() int64
}

// FileSampler probes a recording file on disk.
type FileSampler struct {
	Path string
}

func (f FileSampler) Size() int64 {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

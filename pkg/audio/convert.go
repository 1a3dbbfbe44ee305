package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// converterBin is the resampler binary. A variable so tests can point it at
// something that does not exist.
var converterBin = "sox"

// ASRSampleRate is the rate transcription models expect.
const ASRSampleRate = 16000

// TelephonySampleRate is the rate the switch records and plays at.
const TelephonySampleRate = 8000

// ConvertForTranscription losslessly resamples a recording to 16 kHz mono
// 16-bit for the transcription worker. Telephony recordings arrive at 8 kHz
// and some models mis-transcribe them badly at that rate.
//
// Conversion failure is never fatal: the original path is returned and the
// caller transcribes the recording as-is. created reports whether a new
// temporary file was produced, in which case the caller owns its removal.
func ConvertForTranscription(ctx context.Context, path string, logger *slog.Logger) (converted string, created bool) {
	if logger == nil {
		logger = slog.Default()
	}

	out := filepath.Join(os.TempDir(), fmt.Sprintf("asr_%d_%s.wav", time.Now().Unix(), uuid.NewString()[:8]))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, converterBin, path,
		"-r", fmt.Sprint(ASRSampleRate),
		"-c", "1",
		"-b", "16",
		"-e", "signed-integer",
		out)
	if output, err := cmd.CombinedOutput(); err != nil {
		logger.Warn("resample for transcription failed, using original",
			"path", path, "error", err, "output", string(output))
		os.Remove(out)
		return path, false
	}

	fi, err := os.Stat(out)
	if err != nil || fi.Size() == 0 {
		logger.Warn("resample produced no output, using original", "path", path)
		os.Remove(out)
		return path, false
	}
	return out, true
}

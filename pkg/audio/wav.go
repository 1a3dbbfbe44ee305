package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// WAVHeaderSize is the length of the canonical RIFF/fmt/data header on the
// PCM files this package reads and writes.
const WAVHeaderSize = 44

// WriteWAV writes raw signed 16-bit little-endian mono PCM to path with a
// standard RIFF header. Used for synthesis backends that return bare PCM.
func WriteWAV(path string, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, 0, WAVHeaderSize)
	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	header = append(header, []byte("RIFF")...)
	header = append(header, u32(uint32(36+len(pcm)))...)
	header = append(header, []byte("WAVE")...)
	header = append(header, []byte("fmt ")...)
	header = append(header, u32(16)...)
	header = append(header, u16(1)...) // PCM
	header = append(header, u16(channels)...)
	header = append(header, u32(uint32(sampleRate))...)
	header = append(header, u32(uint32(byteRate))...)
	header = append(header, u16(uint16(blockAlign))...)
	header = append(header, u16(bitsPerSample)...)
	header = append(header, []byte("data")...)
	header = append(header, u32(uint32(len(pcm)))...)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing wav header: %w", err)
	}
	if _, err := f.Write(pcm); err != nil {
		return fmt.Errorf("writing wav data: %w", err)
	}
	return nil
}

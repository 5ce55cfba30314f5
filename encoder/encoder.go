// Package encoder serializes captured PCM into the artifact formats the
// transcription providers accept.
package encoder

import "fmt"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

func New(format string) (Encoder, error) {
	switch format {
	case "flac":
		return NewFlac()
	case "wav":
		return NewWav(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Encode runs frames through a fresh encoder for the given format and
// returns the finished artifact bytes.
func Encode(format string, frames []int16) ([]byte, error) {
	enc, err := New(format)
	if err != nil {
		return nil, err
	}
	for pos := 0; pos < len(frames); pos += BlockSize {
		end := min(pos+BlockSize, len(frames))
		if err := enc.EncodeBlock(frames[pos:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

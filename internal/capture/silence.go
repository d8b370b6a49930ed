package capture

import (
	"context"
	"sync"
	"time"
)

const silenceChunk = 20 * time.Millisecond

// SilenceSource produces zero-valued PCM. It backs the simulated audio backend
// and deterministic tests.
type SilenceSource struct {
	Format Format
	// Limit caps the amount of audio produced per stream; zero means unbounded.
	Limit time.Duration
	// Realtime paces chunks at wall-clock rate instead of emitting them
	// immediately. Unbounded streams are always paced.
	Realtime bool
}

// Open starts a new silence stream.
func (s SilenceSource) Open(context.Context) (Stream, error) {
	format := s.Format
	if format.SampleRate <= 0 {
		format = DefaultFormat
	}
	chunkBytes := format.BytesPerSecond() * int(silenceChunk/time.Millisecond) / 1000

	stream := &silenceStream{
		chunks: make(chan []byte, 16),
		stopCh: make(chan struct{}),
	}
	go stream.produce(chunkBytes, s.chunkLimit(), s.Realtime)
	return stream, nil
}

func (s SilenceSource) chunkLimit() int {
	if s.Limit <= 0 {
		return -1
	}
	return int(s.Limit / silenceChunk)
}

type silenceStream struct {
	chunks chan []byte
	stopCh chan struct{}
	once   sync.Once
}

func (s *silenceStream) produce(chunkBytes int, limit int, realtime bool) {
	defer close(s.chunks)

	// Unpaced bounded streams deliver every chunk so the artifact length is exact.
	if !realtime && limit >= 0 {
		for emitted := 0; emitted < limit; emitted++ {
			s.chunks <- make([]byte, chunkBytes)
		}
		<-s.stopCh
		return
	}

	ticker := time.NewTicker(silenceChunk)
	defer ticker.Stop()
	for emitted := 0; limit < 0 || emitted < limit; emitted++ {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
		select {
		case <-s.stopCh:
			return
		case s.chunks <- make([]byte, chunkBytes):
		}
	}
	<-s.stopCh
}

func (s *silenceStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *silenceStream) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

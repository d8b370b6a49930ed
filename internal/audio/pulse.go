// Package audio provides the PulseAudio capture source and device discovery.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/rbright/herald/internal/capture"
)

const chunkSizeBytes = 640 // 20ms @ 16kHz mono s16

// PulseSource opens record streams on the selected Pulse input.
type PulseSource struct {
	Input    string
	Fallback string
	Logger   *slog.Logger
}

var _ capture.Source = PulseSource{}

// Open selects a device and starts a 16kHz mono s16 record stream on it.
func (p PulseSource) Open(ctx context.Context) (capture.Stream, error) {
	selection, err := SelectDevice(ctx, p.Input, p.Fallback)
	if err != nil {
		return nil, classifyPulseError(err)
	}
	if selection.Warning != "" && p.Logger != nil {
		p.Logger.Warn("audio device fallback", "warning", selection.Warning, "device", selection.Device.ID)
	}
	return openStream(selection.Device)
}

// Format is the PCM layout every PulseSource stream delivers.
func (PulseSource) Format() capture.Format {
	return capture.DefaultFormat
}

// pulseStream delivers fixed-size PCM chunks from one record stream.
type pulseStream struct {
	device Device

	client *pulse.Client
	record *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
}

func openStream(device Device) (*pulseStream, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, classifyPulseError(fmt.Errorf("resolve source %q: %w", device.ID, err))
	}

	s := &pulseStream{
		device: device,
		client: client,
		chunks: make(chan []byte, 128),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	record, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(capture.DefaultFormat.SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("herald voice input"),
	)
	if err != nil {
		_ = s.Close()
		return nil, classifyPulseError(fmt.Errorf("create pulse record stream: %w", err))
	}

	s.record = record
	record.Start()
	return s, nil
}

func (s *pulseStream) Chunks() <-chan []byte {
	return s.chunks
}

// Close halts recording, flushes the partial chunk, and closes Chunks once.
func (s *pulseStream) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()

	s.mu.Lock()
	tail := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(tail) > 0 {
		select {
		case s.chunks <- tail:
		default:
		}
	}

	close(s.chunks)
	return nil
}

// onPCM receives raw Pulse frames and re-slices them into chunkSizeBytes pieces.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Close never races Wait.
	s.inflight.Add(1)

	s.pending = append(s.pending, buffer...)
	var ready [][]byte
	for len(s.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, s.pending[:chunkSizeBytes])
		s.pending = s.pending[chunkSizeBytes:]
		ready = append(ready, chunk)
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	for _, chunk := range ready {
		select {
		case <-s.stopCh:
			return 0, io.EOF
		case s.chunks <- chunk:
		}
	}
	return len(buffer), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// classifyPulseError tags refused access as a permission failure and anything
// else as an unavailable device.
func classifyPulseError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, capture.ErrPermissionDenied) || errors.Is(err, capture.ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission denied") {
		return fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
}

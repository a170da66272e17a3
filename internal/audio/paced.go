// Package audio paces synthesized speech out to the browser in real time.
package audio

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// FrameDuration is the playback length of one frame.
	FrameDuration = 20 * time.Millisecond
	// FrameBytes is one 20ms frame of 48kHz mono PCM16 LE.
	FrameBytes = 960 * 2
	// tailFrames of silence follow each reply to avoid clipping its end.
	tailFrames = 10
)

// FrameWriter delivers one frame to the listener.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// PacedWriter slices 48kHz PCM into 20ms frames and writes them at real-time
// pace, so Reset can drop audio the listener has not heard yet.
type PacedWriter struct {
	out     FrameWriter
	pcmBuf  []byte
	frames  chan []byte
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewPacedWriter starts a pacer writing to out. Call Close to stop it.
func NewPacedWriter(out FrameWriter) *PacedWriter {
	w := &PacedWriter{
		out:    out,
		frames: make(chan []byte, 512),
		stopCh: make(chan struct{}),
	}
	go w.pacer()
	return w
}

// WritePCM buffers PCM and queues every complete frame.
func (w *PacedWriter) WritePCM(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = append(w.pcmBuf, pcm...)
	for len(w.pcmBuf) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, w.pcmBuf[:FrameBytes])
		w.pushFrame(frame)
		n := copy(w.pcmBuf, w.pcmBuf[FrameBytes:])
		w.pcmBuf = w.pcmBuf[:n]
	}
}

// FlushTail pads the remaining PCM to a full frame and adds ~200ms of silence.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	if len(w.pcmBuf) > 0 {
		frame := make([]byte, FrameBytes)
		copy(frame, w.pcmBuf)
		w.pushFrame(frame)
		w.pcmBuf = w.pcmBuf[:0]
	}
	w.mu.Unlock()
	for i := 0; i < tailFrames; i++ {
		w.pushFrame(make([]byte, FrameBytes))
	}
}

// Reset drops queued frames immediately.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		select {
		case <-w.frames:
		default:
			w.pcmBuf = w.pcmBuf[:0]
			return
		}
	}
}

// Close stops the pacer.
func (w *PacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *PacedWriter) pacer() {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				if err := w.out.WriteFrame(frame); err != nil {
					slog.Debug("audio: frame write failed", "error", err)
				}
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, blocking until space is available or stopped.
func (w *PacedWriter) pushFrame(frame []byte) {
	select {
	case <-w.stopCh:
	case w.frames <- frame:
	}
}

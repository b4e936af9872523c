package voice

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/plantora/plantora-go/pkg/api"
)

// Recording is one in-flight microphone capture.
type Recording interface {
	// Stop ends the capture, releases the underlying device, and returns
	// the raw captured audio. Implementations must tolerate being called
	// after the session is torn down.
	Stop() ([]byte, error)
}

// CaptureDevice is the seam to the platform recording API.
type CaptureDevice interface {
	// Begin configures the audio session and starts capturing. It fails
	// with a permission error if microphone access is not granted.
	Begin(ctx context.Context) (Recording, error)
}

// CaptureController owns the microphone-recording resource for one call
// session. At most one recording is active at a time.
type CaptureController struct {
	device CaptureDevice

	mu     sync.Mutex
	active Recording
}

// NewCaptureController creates a controller over the given device.
func NewCaptureController(device CaptureDevice) *CaptureController {
	return &CaptureController{device: device}
}

// StartRecording begins a capture. Starting while one is active is a
// caller error; the UI guards against it.
func (c *CaptureController) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return api.NewInvalidRequestError("recording already in progress")
	}
	rec, err := c.device.Begin(ctx)
	if err != nil {
		return err
	}
	c.active = rec
	return nil
}

// StopRecording is idempotent: with no active recording it returns an
// empty payload and no error. Otherwise it stops the capture, releases
// the handle, and returns the audio as a transport-safe base64 payload.
func (c *CaptureController) StopRecording() (string, error) {
	c.mu.Lock()
	rec := c.active
	c.active = nil
	c.mu.Unlock()

	if rec == nil {
		return "", nil
	}
	pcm, err := rec.Stop()
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}

// Recording reports whether a capture is active.
func (c *CaptureController) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Close force-stops and releases any active recording. Safe to call on
// every exit path.
func (c *CaptureController) Close() {
	c.mu.Lock()
	rec := c.active
	c.active = nil
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
}

package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/plantora/plantora-go/pkg/api"
	"github.com/plantora/plantora-go/pkg/voice"
)

const (
	sampleRate = 24000
	channels   = 1
)

// audioEngine owns the platform audio contexts for the lifetime of one
// call: malgo for the microphone and oto for the speaker.
type audioEngine struct {
	malgoCtx *malgo.AllocatedContext
	speaker  *speaker
}

func newAudioEngine() (*audioEngine, error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init capture context: %w", err)
	}

	// At 24kHz mono 16-bit, 4800 bytes is ~100ms of audio.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4800,
	})
	if err != nil {
		malgoCtx.Uninit()
		return nil, fmt.Errorf("init playback context: %w", err)
	}
	<-ready

	return &audioEngine{
		malgoCtx: malgoCtx,
		speaker:  newSpeaker(otoCtx),
	}, nil
}

// checkPermission probes the default capture device so permission failures
// surface before the call connects. It satisfies voice.PermissionFunc.
func (e *audioEngine) checkPermission(ctx context.Context) error {
	infos, err := e.malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return api.NewPermissionError("microphone access denied: " + err.Error())
	}
	if len(infos) == 0 {
		return api.NewPermissionError("no microphone available")
	}
	return nil
}

func (e *audioEngine) Close() {
	e.speaker.Close()
	e.malgoCtx.Uninit()
}

// micDevice starts one capture per utterance. It satisfies
// voice.CaptureDevice.
type micDevice struct {
	ctx malgo.Context
}

func newMicDevice(e *audioEngine) *micDevice {
	return &micDevice{ctx: e.malgoCtx.Context}
}

func (d *micDevice) Begin(ctx context.Context) (voice.Recording, error) {
	rec := &micRecording{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			rec.mu.Lock()
			rec.buf = append(rec.buf, samples...)
			rec.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(d.ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, api.NewPermissionError("could not open microphone: " + err.Error())
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, api.NewPermissionError("could not start microphone: " + err.Error())
	}

	rec.device = device
	return rec, nil
}

// micRecording is one in-flight utterance capture.
type micRecording struct {
	device *malgo.Device

	mu      sync.Mutex
	buf     []byte
	stopped bool
}

func (r *micRecording) Stop() ([]byte, error) {
	r.mu.Lock()
	if r.stopped {
		buf := r.buf
		r.mu.Unlock()
		return buf, nil
	}
	r.stopped = true
	device := r.device
	r.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf, nil
}

// speaker plays assistant audio as it arrives. oto pulls from the
// internal buffer through Read.
type speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

func newSpeaker(ctx *oto.Context) *speaker {
	s := &speaker{
		otoCtx: ctx,
		buf:    make([]byte, 0, sampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *speaker) Play(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)

	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
}

func (s *speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains instead of erroring.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speaker) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
}

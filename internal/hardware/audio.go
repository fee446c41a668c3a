package hardware

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// One audio context per process; oto does not support re-initialization.
var (
	audioCtx     *oto.Context
	audioCtxOnce sync.Once
	audioCtxOK   bool
)

// AudioController plays WAV ringtones through oto. All methods are safe for
// concurrent use; playback start/stop is serialized so a rapid stop/start pair
// cannot leave an untracked player running.
type AudioController struct {
	soundDir string

	mu      sync.Mutex
	current *ringPlayer
}

func NewAudioController(soundDir string) *AudioController {
	return &AudioController{soundDir: soundDir}
}

// PlayAlarmSound starts looped playback of the named sound, scaled to
// volumePercent (0-100). Any sound already playing is stopped first.
func (c *AudioController) PlayAlarmSound(sound string, volumePercent int) error {
	data, err := os.ReadFile(filepath.Join(c.soundDir, filepath.Base(sound)))
	if err != nil {
		return fmt.Errorf("read sound %q: %w", sound, err)
	}

	format, samples, err := parseWAV(data)
	if err != nil {
		return fmt.Errorf("parse sound %q: %w", sound, err)
	}
	attenuate(samples, volumePercent)

	initAudioContext(format)
	if !audioCtxOK {
		return fmt.Errorf("play sound %q: audio context not ready", sound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.stop()
	}
	c.current = startRingPlayer(samples)
	return nil
}

// StopSound stops playback. Calling it with nothing playing is a no-op.
func (c *AudioController) StopSound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.stop()
		c.current = nil
	}
}

// StartVibration and StopVibration are no-ops: desktop hosts have no
// vibration motor. The coordinator still calls them unconditionally so a
// future mobile controller only has to implement the interface.
func (c *AudioController) StartVibration() {}
func (c *AudioController) StopVibration()  {}

func initAudioContext(format *wavFormat) {
	audioCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			log.Printf("hardware: init audio context: %v", err)
			return
		}
		<-readyChan

		audioCtx = ctx
		audioCtxOK = true
	})
}

// attenuate scales signed 16-bit little-endian PCM in place.
func attenuate(samples []byte, volumePercent int) {
	if volumePercent >= 100 {
		return
	}
	if volumePercent < 0 {
		volumePercent = 0
	}
	for i := 0; i+1 < len(samples); i += 2 {
		s := int16(binary.LittleEndian.Uint16(samples[i:]))
		s = int16(int(s) * volumePercent / 100)
		binary.LittleEndian.PutUint16(samples[i:], uint16(s))
	}
}

// ringPlayer loops one decoded sound until stopped.
type ringPlayer struct {
	stopChan chan struct{}
	stopOnce sync.Once
}

func startRingPlayer(samples []byte) *ringPlayer {
	p := &ringPlayer{stopChan: make(chan struct{})}
	go p.playLoop(samples)
	return p
}

func (p *ringPlayer) playLoop(samples []byte) {
	for {
		player := audioCtx.NewPlayer(bytes.NewReader(samples))
		player.Play()

		for player.IsPlaying() {
			select {
			case <-p.stopChan:
				player.Pause()
				player.Close()
				return
			case <-time.After(10 * time.Millisecond):
			}
		}

		if err := player.Close(); err != nil {
			log.Printf("hardware: close audio player: %v", err)
		}

		select {
		case <-p.stopChan:
			return
		default:
		}
	}
}

func (p *ringPlayer) stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
}

// wavFormat holds the fields of a WAV fmt chunk the player needs.
type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// parseWAV extracts the format and raw PCM data from a RIFF/WAVE file.
func parseWAV(data []byte) (*wavFormat, []byte, error) {
	reader := bytes.NewReader(data)

	riff := make([]byte, 4)
	if _, err := io.ReadFull(reader, riff); err != nil {
		return nil, nil, err
	}
	if string(riff) != "RIFF" {
		return nil, nil, fmt.Errorf("not a RIFF file")
	}
	reader.Seek(4, io.SeekCurrent)

	wave := make([]byte, 4)
	if _, err := io.ReadFull(reader, wave); err != nil {
		return nil, nil, err
	}
	if string(wave) != "WAVE" {
		return nil, nil, fmt.Errorf("not a WAVE file")
	}

	format := &wavFormat{}
	var dataStart int64
	var dataSize uint32

	for {
		chunkID := make([]byte, 4)
		if _, err := io.ReadFull(reader, chunkID); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return nil, nil, err
		}

		switch string(chunkID) {
		case "fmt ":
			var audioFormat, numChannels uint16
			var sampleRate uint32
			binary.Read(reader, binary.LittleEndian, &audioFormat)
			binary.Read(reader, binary.LittleEndian, &numChannels)
			binary.Read(reader, binary.LittleEndian, &sampleRate)
			format.Channels = int(numChannels)
			format.SampleRate = int(sampleRate)

			reader.Seek(6, io.SeekCurrent) // byte rate + block align

			var bitsPerSample uint16
			binary.Read(reader, binary.LittleEndian, &bitsPerSample)
			format.BitDepth = int(bitsPerSample)

			if remaining := int64(chunkSize) - 16; remaining > 0 {
				reader.Seek(remaining, io.SeekCurrent)
			}
		case "data":
			dataStart, _ = reader.Seek(0, io.SeekCurrent)
			dataSize = chunkSize
			reader.Seek(int64(chunkSize), io.SeekCurrent)
		default:
			reader.Seek(int64(chunkSize), io.SeekCurrent)
		}
		// Chunk order is not fixed: some encoders put data before fmt.
		if dataSize > 0 && format.SampleRate != 0 {
			break
		}
	}

	if dataSize == 0 || format.SampleRate == 0 {
		return nil, nil, fmt.Errorf("missing fmt or data chunk")
	}

	pcm := make([]byte, dataSize)
	reader.Seek(dataStart, io.SeekStart)
	if _, err := io.ReadFull(reader, pcm); err != nil {
		return nil, nil, err
	}
	return format, pcm, nil
}

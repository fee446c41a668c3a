// Package hardware drives the ringing side effects: looped alarm sound
// playback and vibration. Playback is a single exclusive resource; starting a
// new sound stops the previous one.
package hardware

import "log"

// Controller is the hardware contract consumed by the ringing coordinator.
type Controller interface {
	PlayAlarmSound(sound string, volumePercent int) error
	StopSound()
	StartVibration()
	StopVibration()
}

// Noop is a Controller for headless hosts and tests.
type Noop struct{}

func (Noop) PlayAlarmSound(sound string, volumePercent int) error {
	log.Printf("hardware: would play %q at %d%%", sound, volumePercent)
	return nil
}
func (Noop) StopSound()      {}
func (Noop) StartVibration() {}
func (Noop) StopVibration()  {}

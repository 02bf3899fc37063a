package receiver

import (
	"sync"
	"time"

	"github.com/ocupoint/sdrrx/pkg/device"
)

// DefaultMaxMessages bounds the decoded message list.
const DefaultMaxMessages = 100

// DeviceState mirrors the configuration last applied to the radio.
type DeviceState struct {
	Frequency  uint32      `json:"frequency_hz"`
	SampleRate uint32      `json:"sample_rate_hz"`
	Gain       device.Gain `json:"gain"`
	PPM        int32       `json:"ppm"`
	Running    bool        `json:"running"`
}

// SpectrumState holds the newest spectrum row and its history.
type SpectrumState struct {
	Latest    []float32
	Waterfall *Waterfall
}

// Push records row as the latest spectrum and appends it to the waterfall.
func (s *SpectrumState) Push(row []float32) {
	s.Latest = row
	s.Waterfall.Push(row)
}

// Message is one decoded message.
type Message struct {
	Time time.Time `json:"time"`
	Mode Mode      `json:"mode"`
	Text string    `json:"text"`
}

// DecoderState holds the mode and a bounded message list.
type DecoderState struct {
	Mode        Mode
	Messages    []Message
	MaxMessages int
}

// AddMessage appends m, evicting the oldest messages beyond MaxMessages.
func (d *DecoderState) AddMessage(m Message) {
	d.Messages = append(d.Messages, m)
	if d.MaxMessages > 0 && len(d.Messages) > d.MaxMessages {
		over := len(d.Messages) - d.MaxMessages
		d.Messages = append(d.Messages[:0], d.Messages[over:]...)
	}
}

// ClearMessages empties the list.
func (d *DecoderState) ClearMessages() { d.Messages = d.Messages[:0] }

// RecordingState tracks the active capture, if any.
type RecordingState struct {
	Active         bool      `json:"active"`
	Path           string    `json:"path,omitempty"`
	SamplesWritten uint64    `json:"samples_written"`
	Started        time.Time `json:"started,omitempty"`
}

// Start marks a capture to path as active.
func (r *RecordingState) Start(path string, now time.Time) {
	*r = RecordingState{Active: true, Path: path, Started: now}
}

// Stop marks the capture as finished, keeping path and count for display.
func (r *RecordingState) Stop() { r.Active = false }

// ControlID is the control currently selected in the UI.
type ControlID int

const (
	ControlFrequency ControlID = iota
	ControlMode
	ControlGain
	ControlSampleRate
	ControlRecord
	numControls
)

var controlNames = [...]string{"frequency", "mode", "gain", "sample_rate", "record"}

func (c ControlID) String() string {
	if c < 0 || c >= numControls {
		return "unknown"
	}
	return controlNames[c]
}

// Next cycles forward, wrapping at the end.
func (c ControlID) Next() ControlID { return (c + 1) % numControls }

// Prev cycles backward, wrapping at the start.
func (c ControlID) Prev() ControlID { return (c + numControls - 1) % numControls }

func (c ControlID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UIState is the presentation state shared with the UI.
type UIState struct {
	Selected ControlID
	Status   string
	Quit     bool
}

// Receiver is the aggregate every stage reads and the control path
// mutates. Access it only through State.
type Receiver struct {
	Device    DeviceState
	Spectrum  SpectrumState
	Decoder   DecoderState
	Recording RecordingState
	UI        UIState
}

// State guards the Receiver with one reader/writer lock. sync.RWMutex
// blocks new readers once a writer is waiting, so UI polling cannot starve
// control updates. Callbacks must be short and must not run DSP.
type State struct {
	mu sync.RWMutex
	r  Receiver
}

// StateOptions size the display history.
type StateOptions struct {
	Settings      device.Settings
	WaterfallRows int
	MaxMessages   int
	Mode          Mode
}

// NewState returns a state seeded with opts. Zero values pick the
// hardware-safe defaults.
func NewState(opts StateOptions) *State {
	if opts.Settings == (device.Settings{}) {
		opts.Settings = device.DefaultSettings()
	}
	if opts.Settings.Frequency == 0 {
		opts.Settings.Frequency = device.DefaultFrequency
	}
	if opts.Settings.SampleRate == 0 {
		opts.Settings.SampleRate = device.DefaultSampleRate
	}
	if opts.WaterfallRows <= 0 {
		opts.WaterfallRows = 500
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if !opts.Mode.Valid() {
		opts.Mode = DefaultMode
	}
	return &State{r: Receiver{
		Device: DeviceState{
			Frequency:  opts.Settings.Frequency,
			SampleRate: opts.Settings.SampleRate,
			Gain:       opts.Settings.Gain,
			PPM:        opts.Settings.PPM,
		},
		Spectrum: SpectrumState{Waterfall: NewWaterfall(opts.WaterfallRows)},
		Decoder:  DecoderState{Mode: opts.Mode, MaxMessages: opts.MaxMessages},
		UI:       UIState{Status: "Ready"},
	}}
}

// View runs fn with shared access.
func (s *State) View(fn func(r *Receiver)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.r)
}

// Update runs fn with exclusive access.
func (s *State) Update(fn func(r *Receiver)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.r)
}

// Mode returns the current demodulation mode.
func (s *State) Mode() (m Mode) {
	s.View(func(r *Receiver) { m = r.Decoder.Mode })
	return m
}

// Tuning returns the current frequency and sample rate.
func (s *State) Tuning() (freq, rate uint32) {
	s.View(func(r *Receiver) { freq, rate = r.Device.Frequency, r.Device.SampleRate })
	return freq, rate
}

// SetStatus replaces the UI status line.
func (s *State) SetStatus(text string) {
	s.Update(func(r *Receiver) { r.UI.Status = text })
}

// AddRecordedSamples advances the recording counter.
func (s *State) AddRecordedSamples(n int) {
	s.Update(func(r *Receiver) { r.Recording.SamplesWritten += uint64(n) })
}

// Snapshot is a copy of the scalar parts of the state, safe to use after
// the lock is released.
type Snapshot struct {
	Device        DeviceState    `json:"device"`
	Mode          Mode           `json:"mode"`
	Messages      int            `json:"messages"`
	Recording     RecordingState `json:"recording"`
	Selected      ControlID      `json:"selected"`
	Status        string         `json:"status"`
	Quit          bool           `json:"quit"`
	WaterfallRows int            `json:"waterfall_rows"`
}

// Snapshot copies the scalar state under one read lock.
func (s *State) Snapshot() (snap Snapshot) {
	s.View(func(r *Receiver) {
		snap = Snapshot{
			Device:        r.Device,
			Mode:          r.Decoder.Mode,
			Messages:      len(r.Decoder.Messages),
			Recording:     r.Recording,
			Selected:      r.UI.Selected,
			Status:        r.UI.Status,
			Quit:          r.UI.Quit,
			WaterfallRows: r.Spectrum.Waterfall.Len(),
		}
	})
	return snap
}

// Messages returns a copy of the decoded message list.
func (s *State) Messages() (out []Message) {
	s.View(func(r *Receiver) {
		out = append([]Message(nil), r.Decoder.Messages...)
	})
	return out
}

// Spectrum returns the latest row and up to n waterfall rows, newest last.
// Rows are shared, not copied; they are never modified after insertion.
func (s *State) Spectrum(n int) (latest []float32, rows [][]float32) {
	s.View(func(r *Receiver) {
		latest = r.Spectrum.Latest
		rows = r.Spectrum.Waterfall.Latest(n)
	})
	return latest, rows
}

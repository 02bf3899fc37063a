package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/ocupoint/sdrrx/pkg/device"
	"github.com/ocupoint/sdrrx/pkg/receiver"
	"github.com/ocupoint/sdrrx/pkg/record"
)

// actions are the command endpoints under /api/.
var actions = []string{
	"frequency",
	"frequency/step",
	"samplerate",
	"gain",
	"ppm",
	"mode",
	"record/start",
	"record/stop",
	"quit",
}

// apiRequest is the body of every command endpoint and of WebSocket
// control messages. Each action reads only its own fields.
type apiRequest struct {
	Action       string   `json:"action,omitempty"`
	FrequencyHz  *int64   `json:"frequency_hz,omitempty"`
	FrequencyMHz *float64 `json:"frequency_mhz,omitempty"`
	DeltaHz      *int64   `json:"delta_hz,omitempty"`
	SampleRateHz *int64   `json:"sample_rate_hz,omitempty"`
	Auto         bool     `json:"auto,omitempty"`
	GainDB       *float64 `json:"gain_db,omitempty"`
	PPM          *int64   `json:"ppm,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Path         string   `json:"path,omitempty"`
}

var errUnknownAction = errors.New("unknown action")

// commandFor turns a request into a command. Range clamping is left to the
// acquisition stage so that clamps are logged in one place.
func (s *Server) commandFor(action string, req apiRequest) (receiver.Command, error) {
	switch action {
	case "frequency":
		switch {
		case req.FrequencyHz != nil:
			return receiver.SetFrequency{Hz: saturateU32(*req.FrequencyHz)}, nil
		case req.FrequencyMHz != nil:
			return receiver.SetFrequency{Hz: saturateU32(int64(math.Round(*req.FrequencyMHz * 1e6)))}, nil
		}
		return nil, errors.New("frequency_hz or frequency_mhz is required")
	case "frequency/step":
		if req.DeltaHz == nil {
			return nil, errors.New("delta_hz is required")
		}
		return receiver.AdjustFrequency{DeltaHz: *req.DeltaHz}, nil
	case "samplerate":
		if req.SampleRateHz == nil {
			return nil, errors.New("sample_rate_hz is required")
		}
		return receiver.SetSampleRate{Hz: saturateU32(*req.SampleRateHz)}, nil
	case "gain":
		switch {
		case req.Auto:
			return receiver.SetGain{Gain: device.AutoGain()}, nil
		case req.GainDB != nil:
			tenths := saturateI32(int64(math.Round(*req.GainDB * 10)))
			return receiver.SetGain{Gain: device.ManualGain(tenths)}, nil
		}
		return nil, errors.New("auto or gain_db is required")
	case "ppm":
		if req.PPM == nil {
			return nil, errors.New("ppm is required")
		}
		return receiver.SetPPM{PPM: saturateI32(*req.PPM)}, nil
	case "mode":
		m, err := receiver.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		return receiver.SetMode{Mode: m}, nil
	case "record/start":
		path := req.Path
		if path == "" {
			path = fmt.Sprintf("capture_%s.%s", time.Now().Format("20060102_150405"), s.opts.RecordExt)
		}
		if err := record.CheckName(path); err != nil {
			return nil, err
		}
		return receiver.StartRecording{Path: path}, nil
	case "record/stop":
		return receiver.StopRecording{}, nil
	case "quit":
		return receiver.Quit{}, nil
	}
	return nil, fmt.Errorf("%w %q", errUnknownAction, action)
}

// dispatch queues the command for action.
func (s *Server) dispatch(action string, req apiRequest) (receiver.Command, error) {
	cmd, err := s.commandFor(action, req)
	if err != nil {
		return nil, err
	}
	if err := s.opts.Commands.Send(cmd); err != nil {
		return nil, err
	}
	s.logger.Debug("queued", "command", cmd.Kind())
	return cmd, nil
}

// handleCommand accepts a POST for action. Commands apply asynchronously,
// so the response is 202 and the outcome shows up in /api/state.
func (s *Server) handleCommand(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req apiRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid JSON", http.StatusBadRequest)
				return
			}
		}
		cmd, err := s.dispatch(action, req)
		switch {
		case errors.Is(err, receiver.ErrQueueClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"command": cmd.Kind(),
		})
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"presets":      presets,
		"sample_rates": device.CommonSampleRates,
		"modes":        receiver.Modes(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"messages": s.opts.State.Messages()})
	case http.MethodDelete:
		s.opts.State.Update(func(rx *receiver.Receiver) { rx.Decoder.ClearMessages() })
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleControl moves the selected UI control.
func (s *Server) handleControl(step func(receiver.ControlID) receiver.ControlID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var selected receiver.ControlID
		s.opts.State.Update(func(rx *receiver.Receiver) {
			rx.UI.Selected = step(rx.UI.Selected)
			selected = rx.UI.Selected
		})
		writeJSON(w, http.StatusOK, map[string]any{"selected": selected})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func saturateU32(v int64) uint32 {
	return uint32(max(0, min(v, math.MaxUint32)))
}

func saturateI32(v int64) int32 {
	return int32(max(math.MinInt32, min(v, math.MaxInt32)))
}

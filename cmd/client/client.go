// Command client connects to the receiver's WebSocket feed, optionally
// sends one control request, and prints status and spectrum frames.
package main

import (
	"encoding/json"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

func main() {
	host := pflag.String("host", "localhost:8080", "Receiver web UI address")
	frames := pflag.Int("frames", 50, "Number of frames to read before exiting")
	action := pflag.String("action", "", `Control action to send first, e.g. "mode" or "frequency"`)
	body := pflag.String("body", "{}", "JSON fields for the action")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("dial", "url", u.String(), "err", err)
	}
	defer c.Close()

	if *action != "" {
		req := map[string]any{}
		if err := json.Unmarshal([]byte(*body), &req); err != nil {
			logger.Fatal("invalid body", "err", err)
		}
		req["action"] = *action
		if err := c.WriteJSON(req); err != nil {
			logger.Fatal("send", "err", err)
		}
	}

	start := time.Now()
	for i := 0; i < *frames; i++ {
		kind, msg, err := c.ReadMessage()
		if err != nil {
			logger.Error("read", "err", err)
			return
		}
		if kind == websocket.BinaryMessage {
			if len(msg) == 0 {
				continue
			}
			peak := 0
			for j, v := range msg {
				if v > msg[peak] {
					peak = j
				}
			}
			logger.Info("spectrum", "bins", len(msg), "peak_bin", peak, "peak", msg[peak])
			continue
		}
		var status struct {
			Type  string         `json:"type"`
			Error string         `json:"error"`
			State map[string]any `json:"state"`
		}
		if err := json.Unmarshal(msg, &status); err != nil {
			logger.Warn("unexpected message", "err", err)
			continue
		}
		if status.Type == "error" {
			logger.Error("receiver rejected request", "err", status.Error)
			continue
		}
		logger.Info(status.Type, "device", status.State["device"], "mode", status.State["mode"], "status", status.State["status"])
	}
	logger.Info("done", "frames", *frames, "elapsed", time.Since(start).Round(time.Millisecond))
}

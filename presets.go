package main

import "github.com/ocupoint/sdrrx/pkg/receiver"

// Preset is a named frequency and mode offered by the UI.
type Preset struct {
	Name        string        `json:"name"`
	FrequencyHz uint32        `json:"frequency_hz"`
	Mode        receiver.Mode `json:"mode"`
}

var presets = []Preset{
	{"APRS North America", 144_390_000, receiver.ModeFMNarrow},
	{"APRS Europe", 144_800_000, receiver.ModeFMNarrow},
	{"ADS-B Aircraft", 1_090_000_000, receiver.ModeADSB},
	{"NOAA Weather 1", 162_550_000, receiver.ModeFMWide},
	{"NOAA Weather 2", 162_400_000, receiver.ModeFMWide},
	{"FM Broadcast", 98_500_000, receiver.ModeFMWide},
	{"ISS APRS Downlink", 145_825_000, receiver.ModeFMNarrow},
}

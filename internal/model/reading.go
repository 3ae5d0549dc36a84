package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotObject reports a payload that is valid JSON but not an object, such
// as a bare "null" or an array.
var ErrNotObject = errors.New("model: payload is not a JSON object")

// Reading is the latest decoded sample from the live stream. Metric fields
// are nil when the inbound value failed numeric coercion: an absent reading
// must stay distinguishable from a true zero.
type Reading struct {
	Moisture    *float64  `json:"moisture"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Pump        string    `json:"pump"`
	At          time.Time `json:"at"`
}

// DecodeReading parses one inbound payload. Firmware versions have sent the
// metric fields both as numbers and as strings, and the pump field under
// either "pump_status" or "pump"; all variants are accepted.
func DecodeReading(payload []byte, at time.Time) (Reading, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Reading{}, err
	}
	if raw == nil {
		return Reading{}, ErrNotObject
	}
	r := Reading{
		Moisture:    numField(raw, "moisture"),
		Temperature: numField(raw, "temperature"),
		Humidity:    numField(raw, "humidity"),
		At:          at,
	}
	if v, ok := raw["pump_status"]; ok {
		r.Pump = strField(v)
	} else if v, ok := raw["pump"]; ok {
		r.Pump = strField(v)
	}
	return r, nil
}

func numField(raw map[string]any, key string) *float64 {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if f, ok := toF64(v); ok {
		return &f
	}
	return nil
}

// toF64 coerces numbers and number-like strings, accepting a comma decimal
// separator.
func toF64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func strField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

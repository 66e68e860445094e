package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// PayloadEncoder serializes telemetry payloads for the wire and decodes
// incoming datagrams on the listening side. A strategy is picked once at
// startup; the tick loop never re-probes.
type PayloadEncoder interface {
	Encode(TelemetryPayload) ([]byte, error)
	Decode([]byte) (TelemetryPayload, error)
	Name() string
}

// NewPayloadEncoder returns the encoder strategy for a config value. The
// empty string selects the default JSON strategy.
func NewPayloadEncoder(name string) (PayloadEncoder, error) {
	switch name {
	case "", "json":
		return jsonEncoder{}, nil
	case "minimal":
		return minimalEncoder{}, nil
	case "msgpack":
		return msgpackEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown encoder %q (want json, minimal, or msgpack)", name)
	}
}

// jsonEncoder is the default strategy, backed by the standard library.
type jsonEncoder struct{}

func (jsonEncoder) Name() string { return "json" }

func (jsonEncoder) Encode(p TelemetryPayload) ([]byte, error) {
	return json.Marshal(p)
}

func (jsonEncoder) Decode(data []byte) (TelemetryPayload, error) {
	var p TelemetryPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

// msgpackEncoder is an opt-in binary strategy for receivers that accept
// MessagePack. The stock ground bridge speaks JSON; leave this off unless
// the peer was set up for it.
type msgpackEncoder struct{}

func (msgpackEncoder) Name() string { return "msgpack" }

func (msgpackEncoder) Encode(p TelemetryPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}

func (msgpackEncoder) Decode(data []byte) (TelemetryPayload, error) {
	var p TelemetryPayload
	err := msgpack.Unmarshal(data, &p)
	return p, err
}

// minimalEncoder is the self-contained fallback: a JSON writer covering
// objects, arrays, strings, numbers, booleans, and null, with no
// dependencies beyond strconv. Output is compact, field order fixed, no
// trailing separators. Decoding still uses the standard library; only the
// encode path has to survive without it.
type minimalEncoder struct{}

func (minimalEncoder) Name() string { return "minimal" }

func (minimalEncoder) Encode(p TelemetryPayload) ([]byte, error) {
	return appendJSONValue(make([]byte, 0, 256), p.document())
}

func (minimalEncoder) Decode(data []byte) (TelemetryPayload, error) {
	var out TelemetryPayload
	err := json.Unmarshal(data, &out)
	return out, err
}

// jsonMember and jsonObject keep object members ordered, so the minimal
// encoder emits identical bytes for identical payloads.
type jsonMember struct {
	key string
	val any
}

type jsonObject []jsonMember

type jsonArray []any

// document lays the payload out as an ordered tree for the minimal
// encoder, mirroring the struct tags field for field.
func (p TelemetryPayload) document() jsonObject {
	pos := jsonObject{
		{"lat", p.Position.Lat},
		{"lon", p.Position.Lon},
		{"altitude_msl", p.Position.AltitudeMSL},
		{"altitude_agl", p.Position.AltitudeAGL},
		{"gs", p.Position.GS},
		{"ias", p.Position.IAS},
		{"vs", p.Position.VS},
		{"heading", p.Position.Heading},
		{"distance", p.Position.Distance},
		{"sim_time", p.Position.SimTime},
	}
	doc := jsonObject{
		{"status", p.Status},
		{"position", pos},
		{"fuel", p.Fuel},
		{"flight_time", p.FlightTime},
	}
	if len(p.Events) > 0 {
		events := make(jsonArray, 0, len(p.Events))
		for _, e := range p.Events {
			events = append(events, jsonObject{
				{"log", e.Log},
				{"sim_time", e.SimTime},
			})
		}
		doc = append(doc, jsonMember{"events", events})
	}
	return doc
}

func appendJSONValue(buf []byte, v any) ([]byte, error) {
	var err error
	switch v := v.(type) {
	case nil:
		buf = append(buf, "null"...)
	case bool:
		if v {
			buf = append(buf, "true"...)
		} else {
			buf = append(buf, "false"...)
		}
	case string:
		buf = appendJSONString(buf, v)
	case int:
		buf = strconv.AppendInt(buf, int64(v), 10)
	case int64:
		buf = strconv.AppendInt(buf, v, 10)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("cannot encode %v as a JSON number", v)
		}
		buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
	case jsonObject:
		buf = append(buf, '{')
		for i, m := range v {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendJSONString(buf, m.key)
			buf = append(buf, ':')
			buf, err = appendJSONValue(buf, m.val)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
	case jsonArray:
		buf = append(buf, '[')
		for i, e := range v {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf, err = appendJSONValue(buf, e)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
	default:
		return nil, fmt.Errorf("cannot encode value of type %T", v)
	}
	return buf, nil
}

func appendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if r < 0x20 {
				buf = append(buf, fmt.Sprintf(`\u%04x`, r)...)
			} else {
				buf = append(buf, string(r)...)
			}
		}
	}
	return append(buf, '"')
}

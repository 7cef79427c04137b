package grpcx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// GetAmbientConditionsMethod is the full method name on the tempgrpcd service.
const GetAmbientConditionsMethod = "/tempgrpcd.v1.TempgrpcdService/GetAmbientConditions"

// DefaultSamples is the sample count requested when the caller passes zero.
const DefaultSamples = 1000

// Field numbers from tempgrpcd.proto.
const (
	fieldStartTime         protowire.Number = 1
	fieldEndTime           protowire.Number = 2
	fieldSamples           protowire.Number = 3
	fieldAmbientConditions protowire.Number = 1
	fieldTemperature       protowire.Number = 1
	fieldHumidity          protowire.Number = 2
	fieldIllumination      protowire.Number = 3
)

// AmbientCondition is one sample of the room sensors.
type AmbientCondition struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	Illumination float64 `json:"illumination"`
}

// GetAmbientConditions asks the service for samples between start and end
// and returns the encoded GetAmbientConditionsResponse untouched, ready to be
// forwarded to a presentation layer or decoded with DecodeAmbientConditions.
func (h *Handle) GetAmbientConditions(ctx context.Context, start, end time.Time, samples uint32) ([]byte, error) {
	if samples == 0 {
		samples = DefaultSamples
	}
	req, err := encodeAmbientRequest(start, end, samples)
	if err != nil {
		return nil, err
	}
	ctx, cancel := h.callContext(ctx)
	defer cancel()
	var resp []byte
	if err := h.ch.conn.Invoke(ctx, GetAmbientConditionsMethod, req, &resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

// encodeAmbientRequest encodes a GetAmbientConditionsRequest.
func encodeAmbientRequest(start, end time.Time, samples uint32) ([]byte, error) {
	var b []byte
	for _, f := range []struct {
		num protowire.Number
		t   time.Time
	}{{fieldStartTime, start}, {fieldEndTime, end}} {
		ts, err := proto.Marshal(timestamppb.New(f.t))
		if err != nil {
			return nil, fmt.Errorf("encode timestamp: %w", err)
		}
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendBytes(b, ts)
	}
	b = protowire.AppendTag(b, fieldSamples, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(samples))
	return b, nil
}

// AmbientSample pairs a sample with the key the service reported it under
// (a timestamp rendered as text).
type AmbientSample struct {
	Key string
	AmbientCondition
}

// DecodeAmbientConditions decodes a GetAmbientConditionsResponse into samples
// sorted by key. Unknown fields are skipped.
func DecodeAmbientConditions(b []byte) ([]AmbientSample, error) {
	var out []AmbientSample
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != fieldAmbientConditions || typ != protowire.BytesType {
			return nil
		}
		s, err := decodeEntry(v)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func decodeEntry(b []byte) (AmbientSample, error) {
	var s AmbientSample
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s.Key = string(v)
		case num == 2 && typ == protowire.BytesType:
			c, err := decodeCondition(v)
			if err != nil {
				return err
			}
			s.AmbientCondition = c
		}
		return nil
	})
	return s, err
}

// decodeCondition accepts double or float encodings for each measurement.
func decodeCondition(b []byte) (AmbientCondition, error) {
	var c AmbientCondition
	err := walk(b, func(num protowire.Number, typ protowire.Type, _ []byte, n uint64) error {
		var f float64
		switch typ {
		case protowire.Fixed64Type:
			f = math.Float64frombits(n)
		case protowire.Fixed32Type:
			f = float64(math.Float32frombits(uint32(n)))
		default:
			return nil
		}
		switch num {
		case fieldTemperature:
			c.Temperature = f
		case fieldHumidity:
			c.Humidity = f
		case fieldIllumination:
			c.Illumination = f
		}
		return nil
	})
	return c, err
}

var errMalformed = errors.New("malformed protobuf message")

// walk visits each field of an encoded message. Length-delimited values are
// passed as v; fixed and varint values as n.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return errMalformed
		}
		b = b[l:]
		var (
			v []byte
			n uint64
		)
		switch typ {
		case protowire.VarintType:
			n, l = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var x uint32
			x, l = protowire.ConsumeFixed32(b)
			n = uint64(x)
		case protowire.Fixed64Type:
			n, l = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v, l = protowire.ConsumeBytes(b)
		default:
			l = protowire.ConsumeFieldValue(num, typ, b)
		}
		if l < 0 {
			return errMalformed
		}
		b = b[l:]
		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}

// rawCodec passes []byte payloads through untouched and falls back to proto
// for generated messages.
type rawCodec struct{}

func (rawCodec) Name() string { return "proto" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case []byte:
		return m, nil
	case *[]byte:
		return *m, nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("rawCodec: cannot marshal %T", v)
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *[]byte:
		*m = append((*m)[:0], data...)
		return nil
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("rawCodec: cannot unmarshal into %T", v)
}

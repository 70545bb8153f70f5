// Package cdbpb implements the cattledb wire schema described in
// cattledb.proto. The messages are small and fixed, so the codec is written
// directly against the protobuf wire format instead of carrying generated
// code; output is byte compatible with any proto3 implementation of the
// same schema.
package cdbpb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// FloatTimeSeries carries one float series as three parallel arrays.
type FloatTimeSeries struct {
	Key              string
	Metric           string
	Timestamps       []int64
	TimestampOffsets []int32
	Values           []float32
}

// FloatTimeSeriesList is the batch envelope for put/get results.
type FloatTimeSeriesList struct {
	Data []*FloatTimeSeries
}

// Pair is one dictionary entry; Value holds JSON.
type Pair struct {
	Key   string
	Value string
}

// Dictionary is an ordered list of pairs.
type Dictionary struct {
	Pairs []Pair
}

// DictTimeSeries carries one dict series; Values has one entry per point.
type DictTimeSeries struct {
	Key              string
	Metric           string
	Timestamps       []int64
	TimestampOffsets []int32
	Values           []*Dictionary
}

// EventSeries is a DictTimeSeries whose metric slot is the event name.
type EventSeries struct {
	Key              string
	Name             string
	Timestamps       []int64
	TimestampOffsets []int32
	Values           []*Dictionary
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendPackedInt64(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedSint32(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedFloat(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// Marshal encodes the series.
func (m *FloatTimeSeries) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Key)
	b = appendString(b, 2, m.Metric)
	b = appendPackedInt64(b, 3, m.Timestamps)
	b = appendPackedSint32(b, 4, m.TimestampOffsets)
	b = appendPackedFloat(b, 5, m.Values)
	return b
}

// Unmarshal decodes into m, replacing its contents.
func (m *FloatTimeSeries) Unmarshal(b []byte) error {
	*m = FloatTimeSeries{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case 1:
			return consumeString(field, typ, &m.Key)
		case 2:
			return consumeString(field, typ, &m.Metric)
		case 3:
			return consumeInt64s(field, typ, &m.Timestamps)
		case 4:
			return consumeSint32s(field, typ, &m.TimestampOffsets)
		case 5:
			return consumeFloats(field, typ, &m.Values)
		}
		return nil
	})
}

// Marshal encodes the list envelope.
func (l *FloatTimeSeriesList) Marshal() []byte {
	var b []byte
	for _, ts := range l.Data {
		b = appendMessage(b, 1, ts.Marshal())
	}
	return b
}

// Unmarshal decodes into l, replacing its contents.
func (l *FloatTimeSeriesList) Unmarshal(b []byte) error {
	*l = FloatTimeSeriesList{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		var ts FloatTimeSeries
		if err := ts.Unmarshal(field); err != nil {
			return err
		}
		l.Data = append(l.Data, &ts)
		return nil
	})
}

// Marshal encodes the pair.
func (p *Pair) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, p.Key)
	b = appendString(b, 2, p.Value)
	return b
}

// Unmarshal decodes into p, replacing its contents.
func (p *Pair) Unmarshal(b []byte) error {
	*p = Pair{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case 1:
			return consumeString(field, typ, &p.Key)
		case 2:
			return consumeString(field, typ, &p.Value)
		}
		return nil
	})
}

// Marshal encodes the dictionary.
func (d *Dictionary) Marshal() []byte {
	var b []byte
	for i := range d.Pairs {
		b = appendMessage(b, 1, d.Pairs[i].Marshal())
	}
	return b
}

// Unmarshal decodes into d, replacing its contents.
func (d *Dictionary) Unmarshal(b []byte) error {
	*d = Dictionary{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		var p Pair
		if err := p.Unmarshal(field); err != nil {
			return err
		}
		d.Pairs = append(d.Pairs, p)
		return nil
	})
}

// Marshal encodes the series.
func (m *DictTimeSeries) Marshal() []byte {
	return marshalDictSeries(m.Key, m.Metric, m.Timestamps, m.TimestampOffsets, m.Values)
}

// Unmarshal decodes into m, replacing its contents.
func (m *DictTimeSeries) Unmarshal(b []byte) error {
	*m = DictTimeSeries{}
	return unmarshalDictSeries(b, &m.Key, &m.Metric, &m.Timestamps, &m.TimestampOffsets, &m.Values)
}

// Marshal encodes the series.
func (m *EventSeries) Marshal() []byte {
	return marshalDictSeries(m.Key, m.Name, m.Timestamps, m.TimestampOffsets, m.Values)
}

// Unmarshal decodes into m, replacing its contents.
func (m *EventSeries) Unmarshal(b []byte) error {
	*m = EventSeries{}
	return unmarshalDictSeries(b, &m.Key, &m.Name, &m.Timestamps, &m.TimestampOffsets, &m.Values)
}

func marshalDictSeries(key, name string, ts []int64, offs []int32, values []*Dictionary) []byte {
	var b []byte
	b = appendString(b, 1, key)
	b = appendString(b, 2, name)
	b = appendPackedInt64(b, 3, ts)
	b = appendPackedSint32(b, 4, offs)
	for _, d := range values {
		b = appendMessage(b, 5, d.Marshal())
	}
	return b
}

func unmarshalDictSeries(b []byte, key, name *string, ts *[]int64, offs *[]int32, values *[]*Dictionary) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case 1:
			return consumeString(field, typ, key)
		case 2:
			return consumeString(field, typ, name)
		case 3:
			return consumeInt64s(field, typ, ts)
		case 4:
			return consumeSint32s(field, typ, offs)
		case 5:
			if typ != protowire.BytesType {
				return fmt.Errorf("field 5: unexpected wire type %d", typ)
			}
			var d Dictionary
			if err := d.Unmarshal(field); err != nil {
				return err
			}
			*values = append(*values, &d)
		}
		return nil
	})
}

// walkFields iterates top level fields, handing the handler the raw varint
// value (re-encoded) or the bytes payload depending on wire type.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, protowire.AppendVarint(nil, v)); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, protowire.AppendFixed32(nil, v)); err != nil {
				return err
			}
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, protowire.AppendFixed64(nil, v)); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func consumeString(field []byte, typ protowire.Type, dst *string) error {
	if typ != protowire.BytesType {
		return fmt.Errorf("string field: unexpected wire type %d", typ)
	}
	*dst = string(field)
	return nil
}

// consumeInt64s accepts both packed and unpacked encodings.
func consumeInt64s(field []byte, typ protowire.Type, dst *[]int64) error {
	switch typ {
	case protowire.VarintType, protowire.BytesType:
		for len(field) > 0 {
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return protowire.ParseError(n)
			}
			*dst = append(*dst, int64(v))
			field = field[n:]
		}
		return nil
	}
	return fmt.Errorf("int64 field: unexpected wire type %d", typ)
}

func consumeSint32s(field []byte, typ protowire.Type, dst *[]int32) error {
	switch typ {
	case protowire.VarintType, protowire.BytesType:
		for len(field) > 0 {
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return protowire.ParseError(n)
			}
			*dst = append(*dst, int32(protowire.DecodeZigZag(v)))
			field = field[n:]
		}
		return nil
	}
	return fmt.Errorf("sint32 field: unexpected wire type %d", typ)
}

func consumeFloats(field []byte, typ protowire.Type, dst *[]float32) error {
	switch typ {
	case protowire.Fixed32Type, protowire.BytesType:
		for len(field) > 0 {
			v, n := protowire.ConsumeFixed32(field)
			if n < 0 {
				return protowire.ParseError(n)
			}
			*dst = append(*dst, math.Float32frombits(v))
			field = field[n:]
		}
		return nil
	}
	return fmt.Errorf("float field: unexpected wire type %d", typ)
}

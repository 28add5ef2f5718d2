package format

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
)

// Keys of the structpb typed form. Integers travel as decimal strings so
// 64-bit values survive the float64 numbers of google.protobuf.Value.
const (
	protoType   = "type"
	protoValue  = "value"
	protoItems  = "items"
	protoFields = "fields"
	protoName   = "name"
)

type protoParser struct {
	json bool
}

// Proto writes a google.protobuf.ListValue in binary wire format.
func Proto() Parser { return protoParser{} }

// ProtoJSON writes the same ListValue through protojson.
func ProtoJSON() Parser { return protoParser{json: true} }

func (p protoParser) Name() string {
	if p.json {
		return "protojson"
	}
	return "proto"
}

func (p protoParser) Marshal(ops []*dmr.Node) ([]byte, error) {
	list := &structpb.ListValue{}
	for _, op := range ops {
		list.Values = append(list.Values, toStruct(op))
	}
	if p.json {
		return protojson.MarshalOptions{Multiline: true}.Marshal(list)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(list)
}

func (p protoParser) Unmarshal(data []byte) ([]*dmr.Node, error) {
	list := &structpb.ListValue{}
	var err error
	if p.json {
		err = protojson.Unmarshal(data, list)
	} else {
		err = proto.Unmarshal(data, list)
	}
	if err != nil {
		return nil, err
	}
	ops := make([]*dmr.Node, 0, len(list.Values))
	for _, value := range list.Values {
		op, err := fromStruct(value)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func toStruct(n *dmr.Node) *structpb.Value {
	fields := map[string]*structpb.Value{
		protoType: structpb.NewStringValue(n.Kind().String()),
	}
	switch n.Kind() {
	case dmr.Bool:
		b, _ := n.AsBool()
		fields[protoValue] = structpb.NewBoolValue(b)
	case dmr.Int, dmr.String:
		fields[protoValue] = structpb.NewStringValue(n.AsString())
	case dmr.Bytes:
		fields[protoValue] = structpb.NewStringValue(base64.StdEncoding.EncodeToString(n.AsBytes()))
	case dmr.List:
		items := &structpb.ListValue{}
		for _, item := range n.Items() {
			items.Values = append(items.Values, toStruct(item))
		}
		fields[protoItems] = structpb.NewListValue(items)
	case dmr.Object:
		entries := &structpb.ListValue{}
		for _, key := range n.Keys() {
			entries.Values = append(entries.Values, structpb.NewStructValue(&structpb.Struct{
				Fields: map[string]*structpb.Value{
					protoName:  structpb.NewStringValue(key),
					protoValue: toStruct(n.Get(key)),
				},
			}))
		}
		fields[protoFields] = structpb.NewListValue(entries)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func fromStruct(v *structpb.Value) (*dmr.Node, error) {
	fields := v.GetStructValue().GetFields()
	if fields == nil {
		return nil, fmt.Errorf("proto: expected a typed struct value")
	}
	kind, err := dmr.ParseKind(fields[protoType].GetStringValue())
	if err != nil {
		return nil, err
	}
	value := fields[protoValue]
	switch kind {
	case dmr.Undefined:
		return dmr.New(), nil
	case dmr.Bool:
		return dmr.FromBool(value.GetBoolValue()), nil
	case dmr.Int:
		i, err := strconv.ParseInt(value.GetStringValue(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("proto: invalid integer %q", value.GetStringValue())
		}
		return dmr.FromInt(i), nil
	case dmr.String:
		return dmr.FromString(value.GetStringValue()), nil
	case dmr.Bytes:
		raw, err := base64.StdEncoding.DecodeString(value.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("proto: invalid bytes value: %w", err)
		}
		return dmr.FromBytes(raw), nil
	case dmr.List:
		out := dmr.NewList()
		for _, item := range fields[protoItems].GetListValue().GetValues() {
			child, err := fromStruct(item)
			if err != nil {
				return nil, err
			}
			out.Add(child)
		}
		return out, nil
	default:
		out := dmr.NewObject()
		for _, entry := range fields[protoFields].GetListValue().GetValues() {
			entryFields := entry.GetStructValue().GetFields()
			child, err := fromStruct(entryFields[protoValue])
			if err != nil {
				return nil, err
			}
			out.Set(entryFields[protoName].GetStringValue(), child)
		}
		return out, nil
	}
}

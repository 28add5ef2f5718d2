package format

import (
	"bytes"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
)

type jsonParser struct{}

// JSON writes one operation per line inside a JSON array.
func JSON() Parser { return jsonParser{} }

func (jsonParser) Name() string { return "json" }

func (jsonParser) Marshal(ops []*dmr.Node) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("[")
	for idx, op := range ops {
		if idx > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		data, err := op.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteString("\n]\n")
	return buf.Bytes(), nil
}

func (jsonParser) Unmarshal(data []byte) ([]*dmr.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	list, err := dmr.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	return operationsFromList(list, "json")
}

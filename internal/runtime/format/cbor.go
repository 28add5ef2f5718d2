package format

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
)

// encMode uses Core Deterministic Encoding so the same log always yields
// identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("format: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("format: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborParser struct{}

// CBOR writes the typed wire form of every operation.
func CBOR() Parser { return cborParser{} }

func (cborParser) Name() string { return "cbor" }

func (cborParser) Marshal(ops []*dmr.Node) ([]byte, error) {
	wires := make([]dmr.Wire, 0, len(ops))
	for _, op := range ops {
		wires = append(wires, op.ToWire())
	}
	return encMode.Marshal(wires)
}

func (cborParser) Unmarshal(data []byte) ([]*dmr.Node, error) {
	var wires []dmr.Wire
	if err := decMode.Unmarshal(data, &wires); err != nil {
		return nil, err
	}
	ops := make([]*dmr.Node, 0, len(wires))
	for _, w := range wires {
		op, err := dmr.FromWire(w)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

package format

import (
	"gopkg.in/yaml.v3"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
)

type yamlParser struct{}

// YAML writes the operations as a YAML sequence.
func YAML() Parser { return yamlParser{} }

func (yamlParser) Name() string { return "yaml" }

func (yamlParser) Marshal(ops []*dmr.Node) ([]byte, error) {
	return yaml.Marshal(dmr.NewList(ops...))
}

func (yamlParser) Unmarshal(data []byte) ([]*dmr.Node, error) {
	list := dmr.New()
	if err := yaml.Unmarshal(data, list); err != nil {
		return nil, err
	}
	return operationsFromList(list, "yaml")
}

// Package declarative builds extensions from a YAML description of their
// subsystems, so a kernel can be booted around a model without writing an
// extension in Go.
//
//	module: test.ext
//	subsystems:
//	  - name: test
//	    version: 2.0.0
//	    attributes:
//	      - {name: size, type: INT, default: 5}
//	    children:
//	      - {key: child, value: "*", attributes: [{name: value}]}
//	    transformers:
//	      - {version: 1.0.0, discard: [size]}
package declarative

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/extension"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
)

// Schema is the root of a declarative extension document.
type Schema struct {
	Module     string      `yaml:"module"`
	Subsystems []Subsystem `yaml:"subsystems"`
}

// Subsystem describes one subsystem and its resource tree.
type Subsystem struct {
	Name         string        `yaml:"name"`
	Version      string        `yaml:"version"`
	Description  string        `yaml:"description"`
	Attributes   []Attribute   `yaml:"attributes"`
	Children     []Child       `yaml:"children"`
	Transformers []Transformer `yaml:"transformers"`
}

// Attribute describes one attribute. Type defaults to STRING.
type Attribute struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"`
	Description string    `yaml:"description"`
	Required    bool      `yaml:"required"`
	Nillable    bool      `yaml:"nillable"`
	Default     *dmr.Node `yaml:"default"`
}

// Child describes a child resource type.
type Child struct {
	Key         string      `yaml:"key"`
	Value       string      `yaml:"value"`
	Description string      `yaml:"description"`
	Attributes  []Attribute `yaml:"attributes"`
	Children    []Child     `yaml:"children"`
}

// Transformer describes the rules for one older version.
type Transformer struct {
	Version           string            `yaml:"version"`
	Discard           []string          `yaml:"discard"`
	Rename            map[string]string `yaml:"rename"`
	DiscardOperations []string          `yaml:"discard-operations"`
	RejectOperations  map[string]string `yaml:"reject-operations"`
}

// Parse decodes and validates a schema.
func Parse(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("kerneltest: parse extension schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// Load reads and parses the schema at path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kerneltest: read extension schema: %w", err)
	}
	return Parse(data)
}

// Validate reports every problem of the schema at once.
func (s *Schema) Validate() error {
	var errs []error
	if s.Module == "" {
		errs = append(errs, errors.New("schema: module is required"))
	}
	for idx, sub := range s.Subsystems {
		if sub.Name == "" {
			errs = append(errs, fmt.Errorf("schema: subsystem %d needs a name", idx))
		}
		if _, err := model.ParseVersion(sub.Version); err != nil {
			errs = append(errs, fmt.Errorf("schema: subsystem %s: %w", sub.Name, err))
		}
		errs = append(errs, validateAttributes(sub.Name, sub.Attributes)...)
		errs = append(errs, validateChildren(sub.Name, sub.Children)...)
		for _, tr := range sub.Transformers {
			if _, err := model.ParseVersion(tr.Version); err != nil {
				errs = append(errs, fmt.Errorf("schema: subsystem %s transformer: %w", sub.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func validateAttributes(owner string, attrs []Attribute) []error {
	var errs []error
	for _, attr := range attrs {
		if attr.Name == "" {
			errs = append(errs, fmt.Errorf("schema: %s has an attribute without a name", owner))
		}
		if attr.Type != "" {
			if _, err := dmr.ParseKind(attr.Type); err != nil {
				errs = append(errs, fmt.Errorf("schema: %s attribute %s: %w", owner, attr.Name, err))
			}
		}
	}
	return errs
}

func validateChildren(owner string, children []Child) []error {
	var errs []error
	for _, child := range children {
		if child.Key == "" || child.Value == "" {
			errs = append(errs, fmt.Errorf("schema: %s has a child without key or value", owner))
			continue
		}
		name := owner + "/" + child.Key + "=" + child.Value
		errs = append(errs, validateAttributes(name, child.Attributes)...)
		errs = append(errs, validateChildren(name, child.Children)...)
	}
	return errs
}

// Extension returns an extension that registers the described subsystems.
func (s *Schema) Extension() extension.Extension {
	return extension.New(s.Module, func(ctx *extension.Context) error {
		for _, sub := range s.Subsystems {
			if err := sub.register(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (sub Subsystem) register(ctx *extension.Context) error {
	version, err := model.ParseVersion(sub.Version)
	if err != nil {
		return err
	}
	registration, err := ctx.RegisterSubsystem(sub.Name, version)
	if err != nil {
		return err
	}
	text := sub.Description
	if text == "" {
		text = "The " + sub.Name + " subsystem"
	}
	reg, err := registration.RegisterSubsystemModel(text)
	if err != nil {
		return err
	}
	if err := registerAttributes(reg, sub.Attributes); err != nil {
		return err
	}
	if err := registerChildren(reg, sub.Children); err != nil {
		return err
	}
	for _, tr := range sub.Transformers {
		target, err := model.ParseVersion(tr.Version)
		if err != nil {
			return err
		}
		if err := registration.RegisterTransformers(target, tr.build()); err != nil {
			return err
		}
	}
	return nil
}

func registerAttributes(reg *registry.ResourceRegistration, attrs []Attribute) error {
	for _, attr := range attrs {
		kind := dmr.String
		if attr.Type != "" {
			parsed, err := dmr.ParseKind(attr.Type)
			if err != nil {
				return err
			}
			kind = parsed
		}
		if err := reg.RegisterAttribute(registry.AttributeDefinition{
			Name:        attr.Name,
			Type:        kind,
			Description: attr.Description,
			Required:    attr.Required,
			Nillable:    attr.Nillable,
			Default:     attr.Default,
		}); err != nil {
			return err
		}
	}
	return nil
}

func registerChildren(reg *registry.ResourceRegistration, children []Child) error {
	for _, child := range children {
		text := child.Description
		if text == "" {
			text = child.Key + "=" + child.Value
		}
		childReg, err := reg.AddChild(model.Element(child.Key, child.Value), text)
		if err != nil {
			return err
		}
		if err := registerAttributes(childReg, child.Attributes); err != nil {
			return err
		}
		if err := registerChildren(childReg, child.Children); err != nil {
			return err
		}
	}
	return nil
}

func (tr Transformer) build() transform.Transformers {
	var steps []transform.ResourceTransformer
	ops := make(map[string]transform.OperationTransformer)
	if len(tr.Discard) > 0 {
		steps = append(steps, transform.DiscardAttributes(tr.Discard...))
	}
	for from, to := range tr.Rename {
		steps = append(steps, transform.RenameAttribute(from, to))
		ops[model.WriteAttribute] = chainRenames(ops[model.WriteAttribute], transform.RenameParameter(from, to))
		ops[model.Add] = chainRenames(ops[model.Add], transform.RenameParameter(from, to))
	}
	for _, name := range tr.DiscardOperations {
		ops[name] = transform.DiscardOperation
	}
	for name, reason := range tr.RejectOperations {
		ops[name] = transform.RejectOperation(reason)
	}
	return transform.Transformers{Resource: transform.Chain(steps...), Operations: ops}
}

func chainRenames(first, next transform.OperationTransformer) transform.OperationTransformer {
	if first == nil {
		return next
	}
	return func(ctx transform.Context, addr model.PathAddress, op *dmr.Node) (transform.OperationResult, error) {
		result, err := first(ctx, addr, op)
		if err != nil || result.Op == nil {
			return result, err
		}
		return next(ctx, addr, result.Op)
	}
}

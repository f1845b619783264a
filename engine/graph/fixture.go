package graph

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// Fixture is the YAML document form of a graph:
//
//	nodes:
//	  - {id: s1, label: Supplier, properties: {risk_score: 30}}
//	edges:
//	  - {source: s1, target: c1, type: SUPPLIES, properties: {is_primary: true}}
type Fixture struct {
	Nodes []domain.Node `yaml:"nodes"`
	Edges []domain.Edge `yaml:"edges"`
}

// DecodeFixture parses a YAML fixture.
func DecodeFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Fixture{}, fmt.Errorf("graph: decode fixture: %w", err)
	}
	return f, nil
}

// ReadFixture parses the YAML fixture at path.
func ReadFixture(path string) (Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("graph: open fixture: %w", err)
	}
	defer fh.Close()
	return DecodeFixture(fh)
}

// Apply writes the fixture through w.
func (f Fixture) Apply(ctx context.Context, w Writer) error {
	return w.SaveBatch(ctx, f.Nodes, f.Edges)
}

// MemoryStore builds a fresh MemoryStore holding the fixture.
func (f Fixture) MemoryStore() (*MemoryStore, error) {
	m := NewMemoryStore()
	if err := f.Apply(context.Background(), m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFixture builds a MemoryStore from the YAML fixture at path.
func LoadFixture(path string) (*MemoryStore, error) {
	f, err := ReadFixture(path)
	if err != nil {
		return nil, err
	}
	m, err := f.MemoryStore()
	if err != nil {
		return nil, fmt.Errorf("graph: load fixture %s: %w", path, err)
	}
	return m, nil
}

// ParseFixture builds a MemoryStore from YAML text.
func ParseFixture(doc string) (*MemoryStore, error) {
	f, err := DecodeFixture(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	return f.MemoryStore()
}

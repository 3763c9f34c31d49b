package provenance

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Persisted findings document format: one record per finding, in
// discovery order, each carrying its value and the mandatory _source and
// _method fields. A document with a record missing either is invalid.

// WriteDocument serializes a store to the hierarchical key-value findings
// format. Emission goes through yaml.Node so record order survives (a
// plain map would marshal in hash order).
func WriteDocument(w io.Writer, store *Store) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range store.Findings() {
		var valueNode yaml.Node
		if err := valueNode.Encode(f.Value); err != nil {
			return fmt.Errorf("encode finding %q value: %w", f.Key, err)
		}
		record := &yaml.Node{Kind: yaml.MappingNode}
		record.Content = append(record.Content,
			scalarNode("value"), &valueNode,
			scalarNode("_source"), scalarNode(f.Source),
			scalarNode("_method"), scalarNode(f.Method),
		)
		root.Content = append(root.Content, scalarNode(f.Key), record)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode findings document: %w", err)
	}
	return enc.Close()
}

// ReadDocument parses a findings document into a fresh store, rejecting
// any record without a non-empty _source and _method.
func ReadDocument(r io.Reader) (*Store, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode findings document: %w", err)
	}
	mapping := &root
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		mapping = root.Content[0]
	}
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("findings document must be a mapping at the top level")
	}

	store := NewStore()
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		record := mapping.Content[i+1]

		var rec struct {
			Value  any    `yaml:"value"`
			Source string `yaml:"_source"`
			Method string `yaml:"_method"`
		}
		if err := record.Decode(&rec); err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
		if err := store.Record(key, rec.Value, rec.Source, rec.Method); err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
	}
	return store, nil
}

func scalarNode(s string) *yaml.Node {
	n := &yaml.Node{}
	n.SetString(s)
	return n
}

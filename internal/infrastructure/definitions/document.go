// Package definitions reads and writes machine definitions as YAML or JSON documents
package definitions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"gopkg.in/yaml.v3"
)

// Document is the file form of a machine definition. States and
// transitions reference each other by slug.
type Document struct {
	Machine     MachineDoc      `yaml:"machine" json:"machine"`
	States      []StateDoc      `yaml:"states" json:"states"`
	Transitions []TransitionDoc `yaml:"transitions" json:"transitions"`
}

// MachineDoc describes the machine header
type MachineDoc struct {
	Slug       string `yaml:"slug" json:"slug"`
	Module     string `yaml:"module,omitempty" json:"module,omitempty"`
	EntityType string `yaml:"entity_type" json:"entity_type"`
	Label      string `yaml:"label,omitempty" json:"label,omitempty"`
	Active     *bool  `yaml:"active,omitempty" json:"active,omitempty"`
	GroupID    *int64 `yaml:"group_id,omitempty" json:"group_id,omitempty"`
}

// StateDoc describes one state
type StateDoc struct {
	Slug  string `yaml:"slug" json:"slug"`
	Kind  string `yaml:"kind" json:"kind"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// TransitionDoc describes one transition; Guard uses the "Type:p1,p2" format
type TransitionDoc struct {
	Slug     string                 `yaml:"slug" json:"slug"`
	From     string                 `yaml:"from" json:"from"`
	To       string                 `yaml:"to" json:"to"`
	Label    string                 `yaml:"label,omitempty" json:"label,omitempty"`
	Guard    string                 `yaml:"guard,omitempty" json:"guard,omitempty"`
	Metadata map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Build converts the document into a validated definition with provisional IDs
func (d *Document) Build() (*workflow.Definition, error) {
	active := true
	if d.Machine.Active != nil {
		active = *d.Machine.Active
	}

	b := workflow.NewBuilder(workflow.Machine{
		Slug:       strings.TrimSpace(d.Machine.Slug),
		Module:     d.Machine.Module,
		EntityType: strings.TrimSpace(d.Machine.EntityType),
		Label:      d.Machine.Label,
		Active:     active,
		GroupID:    d.Machine.GroupID,
	})
	for _, s := range d.States {
		b.State(s.Slug, workflow.StateKind(s.Kind), s.Label)
	}
	for _, t := range d.Transitions {
		cfg := b.Configure(t.From).PermitIf(t.Slug, t.To, t.Guard)
		if t.Label != "" {
			cfg.Labeled(t.Label)
		}
		if len(t.Metadata) > 0 {
			cfg.WithMetadata(t.Metadata)
		}
	}

	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("machine %q: %w", d.Machine.Slug, err)
	}
	return def, nil
}

// FromDefinition renders a stored definition as a document
func FromDefinition(def *workflow.Definition) *Document {
	active := def.Machine.Active
	doc := &Document{
		Machine: MachineDoc{
			Slug:       def.Machine.Slug,
			Module:     def.Machine.Module,
			EntityType: def.Machine.EntityType,
			Label:      def.Machine.Label,
			Active:     &active,
			GroupID:    def.Machine.GroupID,
		},
	}

	slugs := make(map[int64]string, len(def.States))
	for _, s := range def.States {
		slugs[s.ID] = s.Slug
		doc.States = append(doc.States, StateDoc{Slug: s.Slug, Kind: string(s.Kind), Label: s.Label})
	}

	transitions := append([]workflow.Transition(nil), def.Transitions...)
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].DisplayOrder < transitions[j].DisplayOrder
	})
	for _, t := range transitions {
		doc.Transitions = append(doc.Transitions, TransitionDoc{
			Slug:     t.Slug,
			From:     slugs[t.FromStateID],
			To:       slugs[t.ToStateID],
			Label:    t.Label,
			Guard:    t.GuardConfig,
			Metadata: t.Metadata,
		})
	}
	return doc
}

// Decode reads every YAML document in r
func Decode(r io.Reader) ([]*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var docs []*Document
	for {
		var doc Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode definition: %w", err)
		}
		docs = append(docs, &doc)
	}
}

// Encode writes the document as YAML
func Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}
	return enc.Close()
}

// LoadFile decodes and builds every definition in a YAML file
func LoadFile(path string) ([]*workflow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	docs, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	defs := make([]*workflow.Definition, 0, len(docs))
	for _, doc := range docs {
		def, err := doc.Build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, in file name order
func LoadDir(dir string) ([]*workflow.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	var defs []*workflow.Definition
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}

package cmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// Manifest declares schemas and their fields. Relation targets are written
// as "<schema>.<field>".
//
//	schemas:
//	  - name: Host
//	    fields:
//	      - name: name
//	        type: String
//	        unique: true
//	        nullable: false
//	  - name: Service
//	    fields:
//	      - name: owner
//	        type: String
//	        relation: {target: Host.name, cascade: set_null}
type Manifest struct {
	Schemas []SchemaSpec `yaml:"schemas"`
}

// SchemaSpec is one schema of a Manifest.
type SchemaSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Fields      []FieldSpec `yaml:"fields,omitempty"`
}

// FieldSpec is one field of a SchemaSpec.
type FieldSpec struct {
	Name              string `yaml:"name"`
	Description       string `yaml:"description,omitempty"`
	Type              string `yaml:"type"`
	types.MetaOptions `yaml:",inline"`
}

// Change reports one modification made by Apply.
type Change struct {
	Action string
	Schema string
	Field  string
}

func (c Change) String() string {
	if c.Field == "" {
		return fmt.Sprintf("%s schema %s", c.Action, c.Schema)
	}
	return fmt.Sprintf("%s field %s.%s", c.Action, c.Schema, c.Field)
}

// ParseManifest decodes a YAML manifest. Unknown keys are rejected.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, types.ErrValidation.Withf("manifest is empty")
		}
		return Manifest{}, types.ErrValidation.Withf("parsing manifest: %v", err)
	}
	for i, s := range m.Schemas {
		if s.Name == "" {
			return Manifest{}, types.ErrValidation.Withf("schema %d has no name", i+1)
		}
		for j, f := range s.Fields {
			if f.Name == "" || f.Type == "" {
				return Manifest{}, types.ErrValidation.Withf("field %d of schema %s needs a name and a type", j+1, s.Name)
			}
		}
	}
	return m, nil
}

// Apply creates or updates the schemas and fields of m, matching existing
// ones by name. Applying the same manifest twice changes nothing the second
// time. Each step is its own atomic operation; a failing step stops Apply
// and the steps before it stay applied.
func (e *Engine) Apply(ctx context.Context, m Manifest) ([]Change, error) {
	var changes []Change
	schemas := make(map[string]types.Schema, len(m.Schemas))
	for _, spec := range m.Schemas {
		s, err := e.ResolveSchema(ctx, spec.Name)
		switch {
		case errors.Is(err, types.ErrNotFound):
			if s, err = e.CreateSchema(ctx, spec.Name, spec.Description); err != nil {
				return changes, err
			}
			changes = append(changes, Change{Action: "create", Schema: spec.Name})
		case err != nil:
			return changes, err
		case s.Description != spec.Description:
			desc := spec.Description
			if s, err = e.UpdateSchema(ctx, s.SchemaID, SchemaUpdate{Description: &desc}); err != nil {
				return changes, err
			}
			changes = append(changes, Change{Action: "update", Schema: spec.Name})
		}
		schemas[spec.Name] = s
	}

	for _, spec := range m.Schemas {
		s := schemas[spec.Name]
		existing, err := e.ListFields(ctx, types.FieldFilter{SchemaID: s.SchemaID})
		if err != nil {
			return changes, err
		}
		byName := make(map[string]types.Field, len(existing))
		for _, f := range existing {
			byName[f.Name] = f
		}
		for _, fs := range spec.Fields {
			opts := fs.MetaOptions
			if opts.Relation != nil && opts.Relation.Target != "" {
				if !strings.Contains(opts.Relation.Target, ".") {
					return changes, types.ErrValidation.Withf("field %s.%s: relation target %q is not <schema>.<field>", spec.Name, fs.Name, opts.Relation.Target)
				}
				target, err := e.ResolveField(ctx, opts.Relation.Target)
				if errors.Is(err, types.ErrNotFound) {
					return changes, types.ErrRelationTargetMissing.Withf("field %s.%s: %s", spec.Name, fs.Name, opts.Relation.Target)
				}
				if err != nil {
					return changes, err
				}
				r := *opts.Relation
				r.Target = target.FieldID
				opts.Relation = &r
			}

			cur, ok := byName[fs.Name]
			if !ok {
				if _, err := e.CreateField(ctx, s.SchemaID, FieldInput{
					Name:        fs.Name,
					Description: fs.Description,
					Type:        fs.Type,
					Options:     opts,
				}); err != nil {
					return changes, err
				}
				changes = append(changes, Change{Action: "create", Schema: spec.Name, Field: fs.Name})
				continue
			}

			candidate, err := types.BuildMeta(fs.Type, opts)
			if err != nil {
				return changes, fmt.Errorf("field %s.%s: %w", spec.Name, fs.Name, err)
			}
			if candidate.Same(cur.Meta) && fs.Description == cur.Description {
				continue
			}
			typ, desc := fs.Type, fs.Description
			updated, err := e.UpdateField(ctx, cur.FieldID, FieldUpdate{Type: &typ, Options: &opts, Description: &desc})
			if err != nil {
				return changes, err
			}
			if !updated.Meta.Same(cur.Meta) || updated.Description != cur.Description {
				changes = append(changes, Change{Action: "update", Schema: spec.Name, Field: fs.Name})
			}
		}
	}
	return changes, nil
}

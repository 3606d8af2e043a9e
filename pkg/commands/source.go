package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Factory builds one descriptor. Factories are built independently during a
// reload so a failing one does not affect the others.
type Factory struct {
	Name  string
	Build func(ctx context.Context) (Descriptor, error)
}

// Source yields the factories a reload derives the command table from.
type Source interface {
	Name() string
	Factories(ctx context.Context) ([]Factory, error)
}

// StaticSource serves a fixed descriptor list, typically the built-ins.
type StaticSource struct {
	name        string
	descriptors []Descriptor
}

func NewStaticSource(name string, descriptors ...Descriptor) *StaticSource {
	return &StaticSource{name: name, descriptors: descriptors}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Factories(context.Context) ([]Factory, error) {
	out := make([]Factory, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, Factory{
			Name:  d.Name,
			Build: func(context.Context) (Descriptor, error) { return d, nil },
		})
	}
	return out, nil
}

// FileSource reads canned-reply commands from a JSON file on every reload:
//
//	{"commands": [{"name": "rules", "reply": "Be kind, {sender}."}]}
//
// Each entry is decoded on its own, so one malformed entry only fails itself.
type FileSource struct {
	path string
}

type fileCommand struct {
	Name          string   `json:"name"`
	Aliases       []string `json:"aliases,omitempty"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	Reply         string   `json:"reply"`
	RequiresOwner bool     `json:"requires_owner,omitempty"`
	RequiresAdmin bool     `json:"requires_admin,omitempty"`
	GroupOnly     bool     `json:"group_only,omitempty"`
}

type commandFile struct {
	Commands []json.RawMessage `json:"commands"`
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Factories(context.Context) ([]Factory, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read commands file: %w", err)
	}
	var file commandFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse commands file: %w", err)
	}

	out := make([]Factory, 0, len(file.Commands))
	for i, raw := range file.Commands {
		name := peekName(raw)
		if name == "" {
			name = fmt.Sprintf("%s[%d]", s.path, i)
		}
		out = append(out, Factory{
			Name: name,
			Build: func(context.Context) (Descriptor, error) {
				return buildFileCommand(raw)
			},
		})
	}
	return out, nil
}

func peekName(raw json.RawMessage) string {
	var probe struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(probe.Name))
}

func buildFileCommand(raw json.RawMessage) (Descriptor, error) {
	var fc fileCommand
	if err := json.Unmarshal(raw, &fc); err != nil {
		return Descriptor{}, fmt.Errorf("decode command entry: %w", err)
	}
	if strings.TrimSpace(fc.Reply) == "" {
		return Descriptor{}, fmt.Errorf("%w: command %q has an empty reply", ErrInvalidDescriptor, fc.Name)
	}
	category := fc.Category
	if category == "" {
		category = "custom"
	}
	reply := fc.Reply
	return Descriptor{
		Name:          strings.ToLower(strings.TrimSpace(fc.Name)),
		Aliases:       fc.Aliases,
		Description:   fc.Description,
		Category:      category,
		RequiresOwner: fc.RequiresOwner,
		RequiresAdmin: fc.RequiresAdmin,
		GroupOnly:     fc.GroupOnly,
		Handler: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, expandTemplate(reply, req))
		},
	}, nil
}

func expandTemplate(tmpl string, req *Request) string {
	sender := req.Event.SenderName
	if sender == "" {
		sender = req.Event.EffectiveSender()
	}
	return strings.NewReplacer(
		"{sender}", sender,
		"{args}", req.ArgString(),
		"{chat}", req.ChatID,
	).Replace(tmpl)
}

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/picowarden/pkg/logger"
)

const originManual = "manual"

// table is an immutable snapshot of the command set. It is never modified
// after being published.
type table struct {
	byName  map[string]*Descriptor // names and aliases
	primary map[string]*Descriptor // names only
}

func newTable() *table {
	return &table{
		byName:  make(map[string]*Descriptor),
		primary: make(map[string]*Descriptor),
	}
}

func (t *table) add(d *Descriptor) {
	if old, ok := t.primary[d.Name]; ok {
		t.drop(old)
	}
	t.primary[d.Name] = d
	t.byName[d.Name] = d
	for _, a := range d.Aliases {
		a = strings.ToLower(a)
		if _, taken := t.primary[a]; taken {
			continue
		}
		t.byName[a] = d
	}
}

func (t *table) drop(d *Descriptor) {
	delete(t.primary, d.Name)
	for k, v := range t.byName {
		if v == d {
			delete(t.byName, k)
		}
	}
}

func (t *table) clone() *table {
	return t.without("")
}

// without rebuilds the table minus the named command, so aliases it was
// shadowing become resolvable again.
func (t *table) without(name string) *table {
	next := newTable()
	for n, d := range t.primary {
		if n != name {
			next.add(d)
		}
	}
	return next
}

// LoadError reports one descriptor that failed to build during a reload.
type LoadError struct {
	Source string
	Name   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("command %q from %s: %v", e.Name, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type ReloadReport struct {
	Loaded []string
	Failed []*LoadError
}

// Registry maps command names to descriptors. Readers never lock: Lookup
// loads the current immutable table. Writers build a new table and swap it.
type Registry struct {
	active atomic.Pointer[table]

	mu      sync.Mutex
	sources []Source
	manual  map[string]*Descriptor
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{
		sources: sources,
		manual:  make(map[string]*Descriptor),
	}
	r.active.Store(newTable())
	return r
}

// AddSource appends a source consulted by later reloads.
func (r *Registry) AddSource(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
}

// Register validates d and makes it resolvable immediately. A descriptor
// with the same name is replaced.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.Origin = originManual
	stored := &d

	r.mu.Lock()
	defer r.mu.Unlock()
	r.manual[d.Name] = stored
	next := r.active.Load().clone()
	next.add(stored)
	r.active.Store(next)
	return nil
}

// Unregister removes a command. It reports whether the name was present.
func (r *Registry) Unregister(name string) bool {
	name = strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.manual, name)
	cur := r.active.Load()
	if _, ok := cur.primary[name]; !ok {
		return false
	}
	r.active.Store(cur.without(name))
	return true
}

// Lookup resolves a command name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.active.Load().byName[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// List returns every command once, ordered by category then name.
func (r *Registry) List() []Descriptor {
	cur := r.active.Load()
	out := make([]Descriptor, 0, len(cur.primary))
	for _, d := range cur.primary {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) Len() int {
	return len(r.active.Load().primary)
}

// Reload rebuilds the table from every source and swaps it in atomically.
// A descriptor that fails to build keeps its previous version, if any, and
// is listed in the report; reload itself never fails.
func (r *Registry) Reload(ctx context.Context) ReloadReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.active.Load()
	next := newTable()
	var report ReloadReport

	for _, src := range r.sources {
		factories, err := safeFactories(ctx, src)
		if err != nil {
			r.recordFailure(&report, &LoadError{Source: src.Name(), Name: "*", Err: err})
			for _, d := range prev.primary {
				if d.Origin == src.Name() {
					next.add(d)
				}
			}
			continue
		}

		for _, f := range factories {
			d, err := build(ctx, f)
			if err == nil {
				err = d.Validate()
			}
			if err != nil {
				r.recordFailure(&report, &LoadError{Source: src.Name(), Name: f.Name, Err: err})
				if old, ok := prev.primary[strings.ToLower(f.Name)]; ok && old.Origin == src.Name() {
					next.add(old)
				}
				continue
			}
			d.Origin = src.Name()
			next.add(&d)
			report.Loaded = append(report.Loaded, d.Name)
		}
	}

	for _, d := range r.manual {
		next.add(d)
	}

	r.active.Store(next)
	logger.InfoCF("registry", "Command registry reloaded", map[string]any{
		"loaded":   len(report.Loaded),
		"failed":   len(report.Failed),
		"commands": len(next.primary),
	})
	return report
}

func (r *Registry) recordFailure(report *ReloadReport, le *LoadError) {
	report.Failed = append(report.Failed, le)
	logger.ErrorCF("registry", "Command failed to load", map[string]any{
		"source":  le.Source,
		"command": le.Name,
		"error":   le.Err.Error(),
	})
}

func safeFactories(ctx context.Context, src Source) (fs []Factory, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source panicked: %v", p)
		}
	}()
	return src.Factories(ctx)
}

func build(ctx context.Context, f Factory) (d Descriptor, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("factory panicked: %v", p)
		}
	}()
	if f.Build == nil {
		return Descriptor{}, fmt.Errorf("%w: factory %q has no builder", ErrInvalidDescriptor, f.Name)
	}
	return f.Build(ctx)
}

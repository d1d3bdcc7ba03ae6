package metadata

import (
	"sort"
	"sync"

	"rocket-filter/internal/filter"
)

type Registry struct {
	mu                sync.RWMutex
	entities          map[string]*Entity
	relationsBySource map[string][]*Relation // keyed by source entity name
	relationsByName   map[string]*Relation   // keyed by relation name
}

func NewRegistry() *Registry {
	return &Registry{
		entities:          make(map[string]*Entity),
		relationsBySource: make(map[string][]*Relation),
		relationsByName:   make(map[string]*Relation),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities sorted by name.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities
}

// GetRelation returns a relation by name, or nil.
func (r *Registry) GetRelation(name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsByName[name]
}

// GetRelationsForSource returns all relations where source matches the given entity.
func (r *Registry) GetRelationsForSource(entityName string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsBySource[entityName]
}

// ForwardRelation returns the relation named name whose source is entityName, or nil.
func (r *Registry) ForwardRelation(entityName, name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel := r.relationsByName[name]
	if rel == nil || rel.Source != entityName {
		return nil
	}
	return rel
}

// AllRelations returns all registered relations sorted by name.
func (r *Registry) AllRelations() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relations := make([]*Relation, 0, len(r.relationsByName))
	for _, rel := range r.relationsByName {
		relations = append(relations, rel)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].Name < relations[j].Name })
	return relations
}

// Load replaces all entities and relations in the registry.
// Called during startup and on reload.
func (r *Registry) Load(entities []*Entity, relations []*Relation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Name] = e
	}

	r.relationsBySource = make(map[string][]*Relation)
	r.relationsByName = make(map[string]*Relation, len(relations))
	for _, rel := range relations {
		r.relationsByName[rel.Name] = rel
		r.relationsBySource[rel.Source] = append(r.relationsBySource[rel.Source], rel)
	}
}

// FilterModel projects an entity onto the shape filters are validated
// against: its filterable fields and the relations it is the source of.
func (r *Registry) FilterModel(entityName string) (*filter.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity := r.entities[entityName]
	if entity == nil {
		return nil, false
	}
	m := &filter.Model{
		Name:          entity.Name,
		Fields:        entity.FilterFields(),
		Relationships: make(map[string]string),
	}
	for _, rel := range r.relationsBySource[entity.Name] {
		m.Relationships[rel.Name] = rel.Target
	}
	return m, true
}

// ResolveModel implements filter.ModelResolver.
func (r *Registry) ResolveModel(name string) (*filter.Model, bool) {
	return r.FilterModel(name)
}

var _ filter.ModelResolver = (*Registry)(nil)

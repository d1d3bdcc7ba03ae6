package metadata

import "fmt"

type Relation struct {
	Name          string `json:"name"`
	Type          string `json:"type"` // one_to_one, one_to_many, many_to_many
	Source        string `json:"source"`
	Target        string `json:"target"`
	SourceKey     string `json:"source_key"`
	TargetKey     string `json:"target_key,omitempty"`
	JoinTable     string `json:"join_table,omitempty"`
	SourceJoinKey string `json:"source_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`
}

func (r *Relation) IsManyToMany() bool {
	return r.Type == "many_to_many"
}

func (r *Relation) IsOneToMany() bool {
	return r.Type == "one_to_many"
}

func (r *Relation) IsOneToOne() bool {
	return r.Type == "one_to_one"
}

// ParentKey returns the column on the source entity the relation joins on,
// defaulting to the source primary key.
func (r *Relation) ParentKey(source *Entity) string {
	if r.SourceKey != "" {
		return r.SourceKey
	}
	return source.PrimaryKey.Field
}

// Validate checks the relation names the keys its type needs.
func (r *Relation) Validate() error {
	if r.Name == "" || r.Source == "" || r.Target == "" {
		return fmt.Errorf("relation requires name, source and target")
	}
	switch r.Type {
	case "one_to_one", "one_to_many":
		if r.TargetKey == "" {
			return fmt.Errorf("relation %s: target_key is required for %s", r.Name, r.Type)
		}
	case "many_to_many":
		if r.JoinTable == "" || r.SourceJoinKey == "" || r.TargetJoinKey == "" {
			return fmt.Errorf("relation %s: join_table, source_join_key and target_join_key are required", r.Name)
		}
	default:
		return fmt.Errorf("relation %s: unknown type %q", r.Name, r.Type)
	}
	return nil
}

package store

import "socialstore/pkg/validation"

// SchemaVersion is the engine's compiled schema version. Bump it when
// the collection table below changes shape; Open reindexes stores that
// carry an older stamp and refuses stores stamped by a newer build.
const SchemaVersion = 1

// IndexSpec declares one secondary index over a record field. Multi
// marks the field as a list of values, each contributing a membership
// entry (e.g. chats by_participant).
type IndexSpec struct {
	Name  string
	Field string
	Multi bool
	// Numeric marks integer-valued fields. Their entries encode
	// zero-padded so scans sort numerically; query values must be
	// integers, not strings.
	Numeric bool
}

// CollectionDef declares a collection: its unique key field and its
// secondary indexes. The whole schema is this one table; Open's upgrade
// step and the CRUD paths consume it generically.
type CollectionDef struct {
	Name     string
	KeyField string
	Indexes  []IndexSpec
}

// LogsCollection is the append-only audit collection. It is engine-owned:
// Put/BulkPut/Delete reject it, ClearAll empties it like the rest.
const LogsCollection = "logs"

var collections = []CollectionDef{
	{Name: "meta", KeyField: "key"},
	{Name: "users", KeyField: "id"},
	{Name: "profiles", KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_user", Field: "userId"},
	}},
	{Name: "chats", KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_participant", Field: "participants", Multi: true},
	}},
	{Name: "messages", KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_chat", Field: "chatId"},
		{Name: "by_time", Field: "time", Numeric: true},
	}},
	{Name: "posts", KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_author", Field: "authorProfileId"},
		{Name: "by_type", Field: "type"},
	}},
	{Name: "comments", KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_post", Field: "postId"},
	}},
	{Name: "likes", KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_post", Field: "postId"},
		{Name: "by_profile", Field: "profileId"},
	}},
	{Name: LogsCollection, KeyField: "id", Indexes: []IndexSpec{
		{Name: "by_time", Field: "time", Numeric: true},
	}},
}

// Collections returns the declared collection names in schema order.
func Collections() []string {
	out := make([]string, 0, len(collections))
	for _, d := range collections {
		out = append(out, d.Name)
	}
	return out
}

// Definition returns the declared collection definition by name.
func Definition(name string) (CollectionDef, bool) {
	return lookupCollection(name)
}

func lookupCollection(name string) (CollectionDef, bool) {
	for _, d := range collections {
		if d.Name == name {
			return d, true
		}
	}
	return CollectionDef{}, false
}

func (d CollectionDef) index(name string) (IndexSpec, bool) {
	for _, ix := range d.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexSpec{}, false
}

// requiredFields lists the fields every record in the collection must
// carry: the key field plus every scalar index field. Multi-valued
// index fields may be absent or empty.
func (d CollectionDef) requiredFields() []string {
	req := []string{d.KeyField}
	for _, ix := range d.Indexes {
		if !ix.Multi {
			req = append(req, ix.Field)
		}
	}
	return req
}

func init() {
	r := validation.Rules{Required: map[string][]string{}}
	for _, d := range collections {
		r.Required[d.Name] = d.requiredFields()
	}
	validation.SetRules(r)
}

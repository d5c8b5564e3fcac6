// Package catalog implements the Singer catalog model and the engine
// that turns a base catalog into a runtime catalog: stream/property
// selection, metadata overlays, and PII-field marking.
package catalog

// Metadata is a single {breadcrumb, metadata} entry. An empty
// breadcrumb addresses the stream root; a breadcrumb of
// ["properties", name] addresses one field.
type Metadata struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

// IsRoot reports whether this entry addresses the stream root rather
// than a specific property.
func (m Metadata) IsRoot() bool { return len(m.Breadcrumb) == 0 }

// PropertyName returns the property this entry addresses, or "" for
// the root.
func (m Metadata) PropertyName() string {
	if len(m.Breadcrumb) == 2 && m.Breadcrumb[0] == "properties" {
		return m.Breadcrumb[1]
	}
	return ""
}

// Stream is one Singer catalog stream entry.
type Stream struct {
	TapStreamID       string         `json:"tap_stream_id"`
	Schema            map[string]any `json:"schema"`
	Metadata          []Metadata     `json:"metadata"`
	KeyProperties     []string       `json:"key_properties,omitempty"`
	ReplicationKey    string         `json:"replication_key,omitempty"`
	ReplicationMethod string         `json:"replication_method,omitempty"`
}

// RootMetadata returns the stream's root metadata entry, creating and
// appending one if absent.
func (s *Stream) RootMetadata() *Metadata {
	for i := range s.Metadata {
		if s.Metadata[i].IsRoot() {
			return &s.Metadata[i]
		}
	}
	s.Metadata = append(s.Metadata, Metadata{Breadcrumb: []string{}, Metadata: map[string]any{}})
	return &s.Metadata[len(s.Metadata)-1]
}

// PropertyMetadata returns the metadata entry for a named property,
// creating and appending one if absent.
func (s *Stream) PropertyMetadata(name string) *Metadata {
	for i := range s.Metadata {
		if s.Metadata[i].PropertyName() == name {
			return &s.Metadata[i]
		}
	}
	s.Metadata = append(s.Metadata, Metadata{Breadcrumb: []string{"properties", name}, Metadata: map[string]any{}})
	return &s.Metadata[len(s.Metadata)-1]
}

// PropertyNames returns every property declared in the stream's JSON
// schema, in a stable sorted order.
func (s *Stream) PropertyNames() []string {
	props, _ := s.Schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// Catalog is a full Singer catalog document.
type Catalog struct {
	Streams []Stream `json:"streams"`
}

// Clone produces a deep-enough copy for the runtime pipeline to mutate
// without aliasing the base catalog's metadata slices.
func (c Catalog) Clone() Catalog {
	out := Catalog{Streams: make([]Stream, len(c.Streams))}
	for i, s := range c.Streams {
		cloned := s
		cloned.Metadata = make([]Metadata, len(s.Metadata))
		for j, m := range s.Metadata {
			cloned.Metadata[j] = Metadata{
				Breadcrumb: append([]string{}, m.Breadcrumb...),
				Metadata:   cloneMeta(m.Metadata),
			}
		}
		cloned.KeyProperties = append([]string{}, s.KeyProperties...)
		out.Streams[i] = cloned
	}
	return out
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

package model

import "time"

// Public returns a copy of doc without hidden fields, safe to send to clients.
func (m *Model) Public(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if f, ok := m.Fields[k]; ok && f.Hidden {
			continue
		}
		out[k] = v
	}
	return out
}

// PublicAll applies Public to every document.
func (m *Model) PublicAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = m.Public(d)
	}
	return out
}

// Hydrate restores typed values lost in a JSON round trip, currently dates
// stored as RFC 3339 strings.
func (m *Model) Hydrate(doc Document) Document {
	for name, f := range m.Fields {
		v, ok := doc[name]
		if !ok || v == nil {
			continue
		}
		switch {
		case f.Type == TypeDate:
			if t, err := toTime(v); err == nil {
				doc[name] = t
			}
		case f.Type == TypeArray && f.Items == TypeDate:
			if items, ok := v.([]any); ok {
				for i, it := range items {
					if t, err := toTime(it); err == nil {
						items[i] = t
					}
				}
			}
		case f.Type == TypeInteger:
			if n, ok := toFloat(v); ok {
				doc[name] = int64(n)
			}
		}
	}
	return doc
}

// Stamp is the clock used for defaults; tests replace it.
var Stamp = func() time.Time { return time.Now().UTC() }

package profiles

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ReconcileJSON is the default Reconciler. Both payload and template are JSON objects; every
// field of template missing from payload is copied over, nested objects are reconciled field by
// field. Values already in payload are never overwritten, whatever their type. An empty or null
// payload reconciles to the template itself.
func ReconcileJSON(payload []byte, template []byte) ([]byte, error) {
	tmpl, err := decodeObject(template)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	p, err := decodeObject(payload)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if p == nil {
		p = make(map[string]any, len(tmpl))
	}
	fillMissing(p, tmpl)
	return json.Marshal(p)
}

func fillMissing(dst map[string]any, src map[string]any) {
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok {
			dst[k] = deepCopy(sv)
			continue
		}
		dm, dok := dv.(map[string]any)
		sm, sok := sv.(map[string]any)
		if dok && sok {
			fillMissing(dm, sm)
		}
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	}
	return v
}

// decodeObject decodes data as a JSON object. Numbers are kept as json.Number so large
// integers survive the round trip. Empty input and "null" decode to a nil map.
func decodeObject(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	}
	return nil, fmt.Errorf("expected a JSON object, got %T", v)
}

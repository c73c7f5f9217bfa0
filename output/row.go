package output

import "github.com/aluiziolira/go-scrape-pages/models"

// Row is an ordered set of named string values, written as one CSV row.
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow builds a row from alternating key/value pairs.
func NewRow(kv ...string) *Row {
	r := &Row{values: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// RecordRow converts a result record into a row of its present fields.
func RecordRow(rec *models.ResultRecord) *Row {
	keys, values := rec.Fields()
	return &Row{keys: keys, values: values}
}

// Set assigns a value, appending the key on first use.
func (r *Row) Set(key, value string) *Row {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// Keys returns the keys in insertion order.
func (r *Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

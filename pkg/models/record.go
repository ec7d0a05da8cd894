package models

// Record is one logical row parsed from a vendor file. Field order is
// tracked separately from the value map so output follows the order
// fields appeared in the source; an absent field is distinct from an
// empty string.
type Record struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
	Order  []string          `json:"order"`
}

func NewRecord(id string) Record {
	return Record{
		ID:     id,
		Fields: make(map[string]string),
	}
}

func (r *Record) Set(name, value string) {
	if _, exists := r.Fields[name]; !exists {
		r.Order = append(r.Order, name)
	}
	r.Fields[name] = value
}

func (r Record) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

func (r Record) Len() int {
	return len(r.Fields)
}

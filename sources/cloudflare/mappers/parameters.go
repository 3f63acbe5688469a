package mappers

// parameters is an entity's kind specific attribute map. Optional values that
// are absent are never written, so an entity's shape only depends on what the
// provider returned.
type parameters map[string]any

func newParameters(cfg Config) parameters {
	return parameters{"accountId": cfg.AccountID}
}

func (p parameters) str(key, value string) parameters {
	if value != "" {
		p[key] = value
	}
	return p
}

// list always writes a list, empty when values is nil
func (p parameters) list(key string, values []string) parameters {
	out := make([]string, len(values))
	copy(out, values)
	p[key] = out
	return p
}

// optionalList writes values only when there are any
func (p parameters) optionalList(key string, values []string) parameters {
	if len(values) > 0 {
		return p.list(key, values)
	}
	return p
}

func (p parameters) nested(key string, value map[string]any) parameters {
	if value != nil {
		p[key] = value
	}
	return p
}

func optional[T any](p parameters, key string, value *T) {
	if value != nil {
		p[key] = *value
	}
}

func (p parameters) toMap() map[string]any {
	return map[string]any(p)
}

package authz

// Resolver maps a caller id to a display name. Several caller ids can
// resolve to the same displayed member, e.g. a phone number and a short
// alias for the same person.
type Resolver interface {
	// Resolve returns the display name for a caller id. The second return
	// is false when no mapping exists; callers that match by display name
	// may still use the id itself as the name in that case.
	Resolve(callerID string) (string, bool)
}

// MapResolver resolves caller ids through a static alias table, typically
// loaded from configuration.
type MapResolver struct {
	aliases map[string]string
}

// NewMapResolver creates a resolver over the given alias table. The map is
// copied so later mutation of the argument has no effect.
func NewMapResolver(aliases map[string]string) *MapResolver {
	m := make(map[string]string, len(aliases))
	for id, name := range aliases {
		m[id] = name
	}
	return &MapResolver{aliases: m}
}

// Resolve returns the mapped display name, or the caller id itself (and
// false) when no alias exists.
func (r *MapResolver) Resolve(callerID string) (string, bool) {
	if name, ok := r.aliases[callerID]; ok {
		return name, true
	}
	return callerID, false
}

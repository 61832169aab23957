package timeline

// identityPool holds surrogate identities freed by removal so that a later
// insert into the same logical slot can reuse one. A store then sees an
// update instead of a delete plus an insert.
type identityPool map[LogicalKey]string

// reclaim remembers id for key. A key holds at most one identity; a later
// reclaim for the same key replaces the earlier one.
func (p identityPool) reclaim(key LogicalKey, id string) {
	if id == "" {
		return
	}
	p[key] = id
}

// take removes and returns the identity pooled for key.
func (p identityPool) take(key LogicalKey) (string, bool) {
	id, ok := p[key]
	if ok {
		delete(p, key)
	}
	return id, ok
}

// assign gives r a pooled identity when it has none.
func assign[R Record[R]](p identityPool, r R) {
	if r.Identity() != "" {
		return
	}
	if id, ok := p.take(KeyOf(r)); ok {
		r.SetIdentity(id)
	}
}

// forget drops id from the pool once it is back in use.
func (p identityPool) forget(id string) {
	if id == "" {
		return
	}
	for key, pooled := range p {
		if pooled == id {
			delete(p, key)
		}
	}
}

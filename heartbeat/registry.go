package heartbeat

import "fmt"

// Registry is the ordered set of consensus-group handles resident in
// this execution context. It is mutated only while the Manager's mutex
// is held (see manager.go); the order slice gives dispatch a stable,
// insertion-ordered iteration so batching is deterministic in tests, the
// same way APIHeartbeat.Members in the teacher keeps a map but callers
// rely on a single goroutine owning it between suspension points.
type Registry struct {
	groups map[GroupID]Group
	order  []GroupID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[GroupID]Group),
	}
}

// Insert adds handle to the registry. It panics if the group is already
// present: registering the same group twice is a programmer error, not
// a runtime condition the core can recover from.
func (r *Registry) Insert(handle Group) {
	id := handle.GroupID()
	if _, ok := r.groups[id]; ok {
		panic(fmt.Sprintf("heartbeat: group %s already registered", id))
	}

	r.groups[id] = handle
	r.order = append(r.order, id)
}

// Erase removes the group with the given id. It panics if the group is
// not present, for the same reason Insert panics on a duplicate.
func (r *Registry) Erase(id GroupID) {
	if _, ok := r.groups[id]; !ok {
		panic(fmt.Sprintf("heartbeat: group %s not registered", id))
	}

	delete(r.groups, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up a group by id. The second return value is false if the
// group has since been deregistered, e.g. a reply naming a group that
// disappeared mid-flight.
func (r *Registry) Get(id GroupID) (Group, bool) {
	g, ok := r.groups[id]
	return g, ok
}

// ForEach iterates the registry in insertion order. fn must not mutate
// the registry; all mutation happens through Insert/Erase under the
// Manager's mutex, which also guards the span of an ForEach call made
// during planning.
func (r *Registry) ForEach(fn func(Group)) {
	for _, id := range r.order {
		fn(r.groups[id])
	}
}

// Len returns the number of groups currently registered.
func (r *Registry) Len() int {
	return len(r.order)
}

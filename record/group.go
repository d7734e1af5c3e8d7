package record

// Group is a key record together with the value records sharing that key.
// Members are materialized by the exchange reader before delivery, so the
// slice is stable for the lifetime of one downstream invocation.
type Group struct {
	key     *Record
	members []*Record
}

// NewGroup builds a group over a key and its members.
func NewGroup(key *Record, members []*Record) Group {
	return Group{key: key, members: members}
}

// EmptyGroup builds a group that carries the key but no members. Cogroup
// inputs lacking the key deliver these.
func EmptyGroup(key *Record) Group {
	return Group{key: key}
}

// Key returns the key record.
func (g Group) Key() *Record { return g.key }

// Members returns the value records in delivery order.
func (g Group) Members() []*Record { return g.members }

// Empty reports whether the group has no members.
func (g Group) Empty() bool { return len(g.members) == 0 }

// Size returns the member count.
func (g Group) Size() int { return len(g.members) }

// Cogroup joins N groups matched by equal keys, one per exchange input.
// Inputs lacking the key contribute an empty group.
type Cogroup struct {
	key    *Record
	groups []Group
}

// NewCogroup builds a cogroup over the shared key.
func NewCogroup(key *Record, groups []Group) Cogroup {
	return Cogroup{key: key, groups: groups}
}

// Key returns the shared key record.
func (c Cogroup) Key() *Record { return c.key }

// Groups returns one group per input, in input order.
func (c Cogroup) Groups() []Group { return c.groups }

package domain

// IdentityKind tags how a record is addressed during a write.
type IdentityKind uint8

const (
	// IdentityNone marks a record that carries neither an id nor a local key.
	IdentityNone IdentityKind = iota
	// IdentityPersisted marks a record the store already knows by id.
	IdentityPersisted
	// IdentityPending marks a locally created record addressed by its local key.
	IdentityPending
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityPersisted:
		return "persisted"
	case IdentityPending:
		return "pending"
	default:
		return "none"
	}
}

// Identity is the write identity of a record: Persisted(id) or Pending(localKey).
// The resolved key becomes the stored id, so a pending record saved once is
// indistinguishable from one that always had a server id.
type Identity struct {
	kind IdentityKind
	key  string
}

// Persisted returns the identity of a stored record.
func Persisted(id string) Identity {
	if id == "" {
		return Identity{}
	}
	return Identity{kind: IdentityPersisted, key: id}
}

// Pending returns the identity of a record that has never been saved.
func Pending(localKey string) Identity {
	if localKey == "" {
		return Identity{}
	}
	return Identity{kind: IdentityPending, key: localKey}
}

// IdentityOf resolves a record's identity: its id when non-empty, else its local key.
func IdentityOf(u User) Identity {
	return resolveIdentity(u.ID, u.LocalKey)
}

func resolveIdentity(id, localKey string) Identity {
	if id != "" {
		return Persisted(id)
	}
	return Pending(localKey)
}

// Kind reports how the record is addressed.
func (i Identity) Kind() IdentityKind { return i.kind }

// Valid reports whether the identity resolves to a key.
func (i Identity) Valid() bool { return i.kind != IdentityNone }

// IsPersisted reports whether the record is addressed by a stored id.
func (i Identity) IsPersisted() bool { return i.kind == IdentityPersisted }

// IsPending reports whether the record is addressed by a local key.
func (i Identity) IsPending() bool { return i.kind == IdentityPending }

// WriteKey is the key the record is written under.
func (i Identity) WriteKey() string { return i.key }

func (i Identity) String() string {
	if !i.Valid() {
		return "none"
	}
	return i.kind.String() + "(" + i.key + ")"
}

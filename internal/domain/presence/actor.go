package presence

// Actor identifies who performed an administrative change.
type Actor struct {
	// Hostname is the machine name where the change was requested.
	Hostname string
	// Username is the system user who requested the change.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor as user@host for audit logs.
func (a *Actor) String() string {
	if a == nil {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}

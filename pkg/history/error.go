package history

// ErrNotFound is returned when a user's partition doesn't exist in the store.
type ErrNotFound struct {
	User string
}

func (e ErrNotFound) Error() string {
	if e.User == "" {
		return "user partition not found"
	}

	return "user partition not found: " + e.User
}

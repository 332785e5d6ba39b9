package sensitivedata

import "runtime"

// SecureString holds a credential that is zeroed when no longer needed.
// Providers keep their backend tokens in one so the bytes do not outlive
// the client.
type SecureString struct {
	value []byte
}

// NewSecureString copies s into a zeroable buffer.
func NewSecureString(s string) *SecureString {
	ss := &SecureString{
		value: []byte(s),
	}
	runtime.SetFinalizer(ss, func(ss *SecureString) {
		ss.Zero()
	})
	return ss
}

// String returns the secret value. Avoid logging this!
func (ss *SecureString) String() string {
	if ss == nil {
		return ""
	}
	return string(ss.value)
}

// IsEmpty reports whether no value is held.
func (ss *SecureString) IsEmpty() bool {
	return ss == nil || len(ss.value) == 0
}

// Zero overwrites the memory with zeros.
func (ss *SecureString) Zero() {
	if ss == nil {
		return
	}
	clear(ss.value)
}

package version

import "strings"

// Normalize strips a leading epoch ("1:4.17.4-2" becomes "4.17.4-2").
// Only the segment before the first colon is considered and only when it
// is all digits, the remainder is returned untouched. A nil version stays nil.
//
// Normalize is idempotent: a remainder that itself starts with an
// epoch-shaped segment ("2:1:0") is stripped down to "0" in a single call.
func Normalize(v *string) *string {
	if v == nil {
		return nil
	}
	s := StripEpoch(*v)
	return &s
}

// StripEpoch is Normalize for plain strings.
func StripEpoch(v string) string {
	for {
		rest, ok := cutEpoch(v)
		if !ok {
			return v
		}
		v = rest
	}
}

// HasEpoch reports whether v carries an epoch prefix.
func HasEpoch(v string) bool {
	_, ok := cutEpoch(v)
	return ok
}

func cutEpoch(v string) (string, bool) {
	idx := strings.Index(v, ":")
	if idx <= 0 {
		return v, false
	}
	for _, r := range v[:idx] {
		if r < '0' || r > '9' {
			return v, false
		}
	}
	return v[idx+1:], true
}

// Equal compares two optional versions after epoch stripping. Two absent
// versions are equal.
func Equal(a, b *string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	return *na == *nb
}

package transferlog

import "strings"

// userDirName maps a session subject onto a single safe path element.
func userDirName(user string) string {
	switch user {
	case "", ".", "..":
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("@.-_", r):
			return r
		}
		return '_'
	}, user)
}

package session

import (
	"errors"
	"fmt"
)

const maxNameLen = 64

// ValidateName rejects session names that cannot safely become a
// directory name. Allowed: lowercase letters, digits, '-' and '_',
// 1 to 64 characters.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("session name is empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("session name %q is longer than %d characters", name, maxNameLen)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("session name %q contains %q; allowed are a-z, 0-9, '-' and '_'", name, r)
		}
	}
	return nil
}

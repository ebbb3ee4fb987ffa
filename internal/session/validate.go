package session

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is returned, wrapped, for an unusable session name.
var ErrInvalidName = errors.New("invalid session name")

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects names that cannot sit under sessions/ as a single
// directory: empty, too long, or carrying separators, dots or capitals.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidName, name, nameRegexp)
	}
	return nil
}

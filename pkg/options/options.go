package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions defines the contract every option group must satisfy so the
// command layer can validate and bind them uniformly.
type IOptions interface {
	// Validate checks the option values entered by the user at startup.
	Validate() []error

	// AddFlags adds the option group's flags to the given FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a valid "host:port" listen address.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}

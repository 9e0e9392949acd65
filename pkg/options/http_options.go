package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the embedded HTTP API server.
type HttpOptions struct {
	// Network is the listener network, normally "tcp".
	Network string `json:"network" mapstructure:"network"`

	// Addr is the bind address in host:port form.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds request handling.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewHttpOptions returns HttpOptions with the default bind address.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network: "tcp",
		Addr:    "0.0.0.0:8080",
		Timeout: 30 * time.Second,
	}
}

// Validate checks the flag values supplied at startup.
func (o *HttpOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags registers HTTP server flags on the given FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, "http.network", o.Network, "Network for the HTTP server listener.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address and port for the HTTP server.")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Timeout for HTTP server connections.")
}

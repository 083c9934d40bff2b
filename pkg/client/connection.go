package client

import (
	"os"
)

// LoginCredentials are sent as basic auth on every API call.
type LoginCredentials struct {
	Username string
	Password string
}

// ApiConnectionDetails says how to reach the queue server.
type ApiConnectionDetails struct {
	WeaveioUrl string
	BasicAuth  LoginCredentials
}

type ConnectionDetails func() *ApiConnectionDetails

// WithEnvCredentials fills in credentials from the WEAVEIO_USER and
// WEAVEIO_PASSWORD environment variables unless the config already has them.
func (d *ApiConnectionDetails) WithEnvCredentials() *ApiConnectionDetails {
	if d.BasicAuth.Username == "" {
		d.BasicAuth.Username = os.Getenv("WEAVEIO_USER")
	}
	if d.BasicAuth.Password == "" {
		d.BasicAuth.Password = os.Getenv("WEAVEIO_PASSWORD")
	}
	return d
}

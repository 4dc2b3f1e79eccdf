// Package cromwell is a client for the Cromwell workflow engine REST API.
package cromwell

import "time"

// APIPrefix is the versioned workflow endpoint root.
const APIPrefix = "/api/workflows/v1"

// DefaultTimeout bounds every request.
const DefaultTimeout = 60 * time.Second

// Config holds the connection settings for one engine.
type Config struct {
	// BaseURL is scheme://host:port, without the API prefix.
	BaseURL string

	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string

	// Timeout is the HTTP client timeout for each request.
	Timeout time.Duration
}

// DefaultConfig returns a Config for an engine on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: DefaultTimeout,
	}
}

// WithAuth returns a copy of the config with basic auth credentials.
func (c Config) WithAuth(username, password string) Config {
	c.Username = username
	c.Password = password
	return c
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// Package server describes the Domain Administration Server a command targets.
package server

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults used when a descriptor leaves a field empty.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 8080
	DefaultAdminPort     = 4848
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = ""
	DefaultDomain        = "domain1"
)

// AdminInterface is the administration protocol a server speaks.
type AdminInterface int

const (
	// InterfaceUnset means the interface is derived from the server version.
	InterfaceUnset AdminInterface = iota
	// InterfaceHTTP is the legacy form-encoded __asadmin interface.
	InterfaceHTTP
	// InterfaceREST is the REST interface returning action reports.
	InterfaceREST
)

// String returns the configuration name of the interface.
func (a AdminInterface) String() string {
	switch a {
	case InterfaceHTTP:
		return "http"
	case InterfaceREST:
		return "rest"
	case InterfaceUnset:
		return ""
	default:
		return fmt.Sprintf("AdminInterface(%d)", int(a))
	}
}

// ParseAdminInterface parses "http" or "rest" (case-insensitive).
// An empty string yields InterfaceUnset.
func ParseAdminInterface(s string) (AdminInterface, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return InterfaceUnset, nil
	case "http":
		return InterfaceHTTP, nil
	case "rest":
		return InterfaceREST, nil
	default:
		return InterfaceUnset, &InterfaceError{Value: s}
	}
}

// InterfaceError reports an administration interface name nobody knows.
type InterfaceError struct {
	Value string
}

func (e *InterfaceError) Error() string {
	return fmt.Sprintf("unknown administration interface %q (must be http or rest)", e.Value)
}

// Descriptor holds connection and file-system data for one server.
// It is owned by the caller and treated as read-only by the framework.
type Descriptor struct {
	// Name identifies the server in logs and messages.
	Name string

	// Host is the DAS hostname or IP address.
	Host string

	// Port is the HTTP listener port.
	Port int

	// AdminPort is the administration listener port.
	AdminPort int

	// AdminUser and AdminPassword are the administrator credentials.
	AdminUser     string
	AdminPassword string

	// Secure selects https for the administration listener.
	Secure bool

	// ServerRoot is the server installation directory (the one holding modules/).
	ServerRoot string

	// DomainsFolder holds the domains; defaults to ServerRoot/domains.
	DomainsFolder string

	// Domain is the domain name.
	Domain string

	// JavaHome overrides the Java VM used for local commands.
	JavaHome string

	// AdminInterface is the declared administration interface.
	AdminInterface AdminInterface

	// Version is the declared server version.
	Version Version
}

// GetName returns the server name, falling back to host:adminPort.
func (d *Descriptor) GetName() string {
	if d.Name != "" {
		return d.Name
	}
	return net.JoinHostPort(d.GetHost(), strconv.Itoa(d.GetAdminPort()))
}

// GetHost returns the host, defaulting to localhost.
func (d *Descriptor) GetHost() string {
	if d.Host == "" {
		return DefaultHost
	}
	return d.Host
}

// GetAdminPort returns the admin port, defaulting to 4848.
func (d *Descriptor) GetAdminPort() int {
	if d.AdminPort <= 0 {
		return DefaultAdminPort
	}
	return d.AdminPort
}

// GetAdminUser returns the admin user, defaulting to "admin".
func (d *Descriptor) GetAdminUser() string {
	if d.AdminUser == "" {
		return DefaultAdminUser
	}
	return d.AdminUser
}

// GetDomain returns the domain name, defaulting to domain1.
func (d *Descriptor) GetDomain() string {
	if d.Domain == "" {
		return DefaultDomain
	}
	return d.Domain
}

// Scheme returns http or https.
func (d *Descriptor) Scheme() string {
	if d.Secure {
		return "https"
	}
	return "http"
}

// AdminURL returns the base URL of the administration listener joined with path.
func (d *Descriptor) AdminURL(path string) string {
	host := net.JoinHostPort(d.GetHost(), strconv.Itoa(d.GetAdminPort()))
	return fmt.Sprintf("%s://%s/%s", d.Scheme(), host, strings.TrimPrefix(path, "/"))
}

// GetDomainsFolder returns the domains folder, defaulting to ServerRoot/domains.
func (d *Descriptor) GetDomainsFolder() string {
	if d.DomainsFolder != "" {
		return d.DomainsFolder
	}
	if d.ServerRoot == "" {
		return ""
	}
	return filepath.Join(d.ServerRoot, "domains")
}

// DomainDir returns the domain directory, or "" when no domains folder is known.
func (d *Descriptor) DomainDir() string {
	folder := d.GetDomainsFolder()
	if folder == "" {
		return ""
	}
	return filepath.Join(folder, d.GetDomain())
}

// IsLocal reports whether the server runs on this machine.
func (d *Descriptor) IsLocal() bool {
	host := strings.ToLower(d.GetHost())
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if h, err := os.Hostname(); err == nil && strings.EqualFold(h, host) {
		return true
	}
	return false
}

// String returns a human-readable description of the target.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.GetName(), d.AdminURL(""))
}

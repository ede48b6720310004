package connection

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hashicorp/go-version"
)

// minimum server versions the builder's SQL is known to run on
var serverConstraints = map[string]string{
	"mysql":    ">= 5.7",
	"postgres": ">= 10",
	"sqlite":   ">= 3.8",
}

var versionQueries = map[string]string{
	"mysql":    "SELECT VERSION()",
	"postgres": "SHOW server_version",
	"sqlite":   "SELECT sqlite_version()",
}

var leadingVersion = regexp.MustCompile(`^\d+(\.\d+)*`)

// ServerVersion queries the server version string and parses its numeric part.
// MySQL "8.0.35-0ubuntu0.22.04.1" and PostgreSQL "16.1 (Debian 16.1-1)" parse
// as 8.0.35 and 16.1.
func (p *Provider) ServerVersion(ctx context.Context) (*version.Version, string, error) {
	q, ok := versionQueries[p.config.Kind()]
	if !ok {
		return nil, "", fmt.Errorf("unsupported driver: %q", p.config.Driver)
	}
	db, err := p.Connect(ctx)
	if err != nil {
		return nil, "", err
	}

	var raw string
	if err := db.QueryRowxContext(ctx, q).Scan(&raw); err != nil {
		return nil, "", fmt.Errorf("failed to query server version: %w", err)
	}
	v, err := ParseServerVersion(raw)
	if err != nil {
		return nil, raw, err
	}
	return v, raw, nil
}

// ParseServerVersion parses the leading numeric part of a server version string
func ParseServerVersion(raw string) (*version.Version, error) {
	core := leadingVersion.FindString(raw)
	if core == "" {
		return nil, fmt.Errorf("unrecognized server version %q", raw)
	}
	return version.NewVersion(core)
}

// CheckServerVersion returns an error when the server is older than the
// minimum supported version of its driver family
func (p *Provider) CheckServerVersion(ctx context.Context) (*version.Version, error) {
	v, raw, err := p.ServerVersion(ctx)
	if err != nil {
		return nil, err
	}
	constraint, err := version.NewConstraint(serverConstraints[p.config.Kind()])
	if err != nil {
		return nil, err
	}
	if !constraint.Check(v) {
		return v, fmt.Errorf("%s server version %s does not satisfy %s", p.config.Kind(), raw, constraint)
	}
	return v, nil
}

// Package modules implements the module registry (component D): the
// set of named roots a daemon exposes, each either Open (no
// authentication) or Restricted (challenge/response required before
// any path under it is touched). Adapted from rsyncd.Module and
// rsyncd.Server's getModule/checkACL/formatModuleList in the teacher
// repo, split into its own package so the handshake state machine
// depends only on this registry, not on the whole server type.
package modules

import (
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gokrazy/rsync-handshake/internal/auth"
)

// Module is one named root a daemon exposes. Restricted is the
// tagged-variant discriminant (component D): when true, Authenticate
// is non-nil and must succeed before a connection may use this
// module; the registry never exposes the underlying secret, only an
// authentication closure built from it at load time.
type Module struct {
	Name     string
	Comment  string
	Path     string
	Writable bool
	ACL      []string

	Restricted   bool
	Authenticate auth.Verifier // nil unless Restricted
}

// ErrNotFound is returned by Registry.Get when no module with the
// requested name exists. The handshake renders it and an ACL denial
// the same way to the peer so a scan can't distinguish "doesn't
// exist" from "exists but you're denied".
var ErrNotFound = fmt.Errorf("modules: no such module")

// ErrACLDenied is returned by CheckACL. It is deliberately
// indistinguishable from ErrNotFound once rendered to the wire (see
// the handshake's error-reporting policy): both become "Unknown
// module" to an unauthenticated peer.
var ErrACLDenied = fmt.Errorf("modules: access denied")

// Registry holds the configured modules for one daemon instance.
type Registry struct {
	byName map[string]*Module
	order  []string
}

// NewRegistry builds a Registry from a slice of modules, validating
// that every module has a name and a path and that no two modules
// share a name.
func NewRegistry(mods []Module) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Module, len(mods))}
	for i := range mods {
		m := mods[i]
		if m.Name == "" {
			return nil, fmt.Errorf("modules: module at index %d has no name", i)
		}
		if m.Path == "" {
			return nil, fmt.Errorf("modules: module %q has empty path", m.Name)
		}
		if !filepath.IsAbs(m.Path) {
			return nil, fmt.Errorf("modules: module %q path %q must be absolute", m.Name, m.Path)
		}
		m.Path = filepath.Clean(m.Path)
		if m.Restricted && m.Authenticate == nil {
			return nil, fmt.Errorf("modules: restricted module %q has no authenticator", m.Name)
		}
		if _, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("modules: duplicate module name %q", m.Name)
		}
		r.byName[m.Name] = &m
		r.order = append(r.order, m.Name)
	}
	return r, nil
}

// Get returns the named module, or ErrNotFound.
func (r *Registry) Get(name string) (*Module, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// List renders the module listing sent in response to an empty module
// name (spec §4.6 step 2): one line per module in configuration order,
// name left-padded to 15 columns, followed by a tab and the comment —
// and no trailing tab when Comment is empty. This is the single
// source of truth for that wire format; handshake.sendListing calls
// it rather than re-deriving it.
func (r *Registry) List() string {
	if len(r.order) == 0 {
		return ""
	}
	var b strings.Builder
	for _, name := range r.order {
		m := r.byName[name]
		if m.Comment != "" {
			fmt.Fprintf(&b, "%-15s\t%s\n", m.Name, m.Comment)
		} else {
			fmt.Fprintf(&b, "%-15s\n", m.Name)
		}
	}
	return b.String()
}

// Names returns the configured module names sorted alphabetically,
// for tests and diagnostics.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// CheckACL evaluates a module's allow/deny rules against remoteAddr,
// ported from the teacher's checkACL. Rules are evaluated in order;
// the first matching rule decides allow/deny. No rules means allow.
func CheckACL(acls []string, remoteAddr net.Addr) error {
	if len(acls) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		host = remoteAddr.String()
	}
	remoteIP, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("modules: invalid remote host %q", host)
	}
	for _, acl := range acls {
		i := strings.IndexByte(acl, ' ')
		if i < 0 {
			return fmt.Errorf("modules: invalid acl %q (no space found)", acl)
		}
		action, who := acl[:i], acl[i+1:]
		if action != "allow" && action != "deny" {
			return fmt.Errorf("modules: invalid acl %q (syntax: allow|deny <all|cidr>)", acl)
		}
		if who != "all" {
			prefix, err := netip.ParsePrefix(who)
			if err != nil {
				return fmt.Errorf("modules: invalid acl %q (syntax: allow|deny <all|cidr>)", acl)
			}
			if !prefix.Contains(remoteIP) {
				continue
			}
		}
		switch action {
		case "allow":
			return nil
		case "deny":
			return ErrACLDenied
		}
	}
	return nil
}

// Package restrict implements the handshake's defense-in-depth
// filesystem jail (spec §L.3): once a daemon's module roots are
// known, Landlock confines the process to exactly those roots (plus
// the handful of system files Go's DNS/user-lookup resolvers read),
// independently of the lexical path-safety check in
// internal/handshake. Landlock is best-effort: its absence (non-Linux
// kernels, or Linux kernels too old to support it) must never turn
// into a handshake failure, only a missed layer.
package restrict

import (
	"fmt"

	"github.com/landlock-lsm/go-landlock/landlock"

	"github.com/gokrazy/rsync-handshake/internal/log"
)

// ExtraHook is set when testing to make the landlock rule set more permissive.
var ExtraHook func() []landlock.Rule

// Files the net package's resolver reads when a name lookup happens
// inside the jail.
var dnsLookup = []string{
	"/etc/resolv.conf",
	"/etc/hosts",
	"/etc/services",
	"/etc/nsswitch.conf",
}

var userLookup = []string{
	"/etc/passwd", // user lookup
	"/etc/group",
}

// ToModuleRoots restricts the process to roDirs (read-only, e.g. Open
// and read-only Restricted module roots) and rwDirs (read-write,
// Writable modules a Receiver may write into), plus the system files
// above. Call it once, after the module registry has been built and
// before accepting any connection.
func ToModuleRoots(logger log.Logger, roDirs, rwDirs []string) error {
	re := ExtraHook
	if re == nil {
		re = func() []landlock.Rule { return nil }
	}
	if logger != nil {
		logger.Printf("restrict: landlock jail to module roots (ro: %d, rw: %d)", len(roDirs), len(rwDirs))
	}
	err := landlock.V3.BestEffort().RestrictPaths(
		append(re(), []landlock.Rule{
			landlock.ROFiles(dnsLookup...).IgnoreIfMissing(),
			landlock.ROFiles(userLookup...).IgnoreIfMissing(),
			landlock.RODirs(defaultRoDirs...).IgnoreIfMissing(),
			landlock.RODirs(roDirs...).IgnoreIfMissing(),
			landlock.RWDirs(rwDirs...).WithRefer(),
		}...)...)
	if err != nil {
		return fmt.Errorf("landlock: %v", err)
	}
	return nil
}

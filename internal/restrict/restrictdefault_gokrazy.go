//go:build gokrazy

package restrict

// defaultRoDirs mirrors restrictdefault_others.go's /etc rule, plus
// /tmp: gokrazy's root file system is read-only, so /etc/resolv.conf
// there is a symlink into /tmp, and the jail must cover the symlink
// target too or name resolution inside the jail breaks.
var defaultRoDirs = []string{
	"/etc",
	"/tmp",
}

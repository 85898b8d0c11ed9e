//go:build !gokrazy

package restrict

// defaultRoDirs is added to every module's jail regardless of that
// module's own roDirs/rwDirs (ToModuleRoots), on top of the narrower
// dnsLookup/userLookup file rules: /etc/resolv.conf gets rewritten
// in place by DHCP clients and the like, so a file-level rule alone
// goes stale after the first rewrite. Granting the whole directory
// read-only survives that churn without widening write access.
var defaultRoDirs = []string{
	"/etc",
}

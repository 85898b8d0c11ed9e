package handshake

import (
	"github.com/gokrazy/rsync-handshake/internal/modules"
	"github.com/gokrazy/rsync-handshake/internal/rsyncopts"
)

// applyParsedArgs implements step 7: having parsed the argument
// vector with component C, check its shape against the selected
// module and fold it into tc. mod is already resolved (and, for a
// formerly-restricted module, already authenticated) by the time
// this runs.
func applyParsedArgs(tc *TransferConfig, mod *modules.Module, parsed *rsyncopts.Config) *Error {
	if len(parsed.Args) == 0 || parsed.Args[0] != "." {
		return newError(ProtocolError, "first argument must be \".\", got %q", firstOrEmpty(parsed.Args))
	}
	rest := parsed.Args[1:]

	tc.Module = mod
	tc.FileSelection = parsed.FileSelection
	tc.IncrementalRecurse = parsed.IncrementalRecurse
	tc.PreserveDevices = parsed.PreserveDevices
	tc.PreserveSpecials = parsed.PreserveSpecials
	tc.PreserveLinks = parsed.PreserveLinks
	tc.PreservePermissions = parsed.PreservePermissions
	tc.PreserveTimes = parsed.PreserveTimes
	tc.PreserveUser = parsed.PreserveUser
	tc.PreserveGroup = parsed.PreserveGroup
	tc.NumericIDs = parsed.NumericIDs
	tc.IgnoreTimes = parsed.IgnoreTimes
	tc.Delete = parsed.Delete
	tc.SafeFileList = parsed.SafeFileList
	tc.Verbosity = parsed.Verbosity

	if parsed.Sender {
		tc.Role = Sender
		if len(rest) == 0 {
			return newError(ProtocolError, "sender role requires at least one source path")
		}
		for _, name := range rest {
			if containsWildcard(name) {
				return newError(ProtocolError, "wildcards are not supported in source path %q", name)
			}
			resolved, err := resolveUnderRoot(mod.Path, name)
			if err != nil {
				return wrapError(SecurityError, err, "resolving source path %q", name)
			}
			tc.SourceFiles = append(tc.SourceFiles, resolved)
		}
	} else {
		tc.Role = Receiver
		if len(rest) != 1 {
			return newError(ProtocolError, "receiver role requires exactly one destination path, got %d", len(rest))
		}
		if !mod.Writable {
			return newError(SecurityError, "module %s is not writable", mod.Name)
		}
		resolved, err := resolveUnderRoot(mod.Path, rest[0])
		if err != nil {
			return wrapError(SecurityError, err, "resolving destination path %q", rest[0])
		}
		tc.ReceiverDestination = resolved
	}

	if tc.FileSelection == Recurse && !tc.IncrementalRecurse {
		return newError(ProtocolError, "recursive transfer requires incremental recurse capability")
	}

	return nil
}

func firstOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

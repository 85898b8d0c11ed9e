// Package rsyncopts implements the declarative, table-driven argument
// parser used by the handshake's component C: a small subset of
// popt(3) semantics, just enough to parse the argument vector an rsync
// client sends right after module selection (--server, --sender,
// -r/--no-r, -e, and the handful of attribute flags in the option
// table below).
//
// Options are applied in encounter order, not table order: a later
// --no-r on the command line must win over an earlier -r, exactly as
// real rsync's popt-based parser behaves. Each option's handler
// mutates a *Config directly, so "last handler wins" falls out of the
// loop for free rather than needing special-cased precedence logic.
package rsyncopts

import (
	"fmt"
	"strings"
)

// FileSelection mirrors the handshake's file_selection tri-state
// (spec: default Exact; set by --dirs, --recursive, or reverted by
// --no-r).
type FileSelection int

const (
	Exact FileSelection = iota
	TransferDirs
	Recurse
)

func (f FileSelection) String() string {
	switch f {
	case TransferDirs:
		return "TransferDirs"
	case Recurse:
		return "Recurse"
	default:
		return "Exact"
	}
}

// Config is the parsed, negotiated shape of one handshake's argument
// vector: the same fields the handshake's TransferConfig carries,
// before module resolution turns the raw unnamed arguments into
// source_files/receiver_destination.
type Config struct {
	Server bool // sentinel; required, no effect beyond presence
	Sender bool

	FileSelection      FileSelection
	IncrementalRecurse bool

	PreserveDevices     bool
	PreserveSpecials    bool
	PreserveLinks       bool
	PreserveUser        bool
	PreserveGroup       bool
	NumericIDs          bool
	PreservePermissions bool
	PreserveTimes       bool
	IgnoreTimes         bool
	Delete              bool

	SafeFileList bool
	Verbosity    int

	// RemoteShell holds the raw -e/--rsh value, e.g. ".if".
	RemoteShell string

	// Args holds the non-option arguments in input order: the
	// mandatory leading "." plus any source/destination paths.
	Args []string
}

// ErrMissingRequired is returned when a Required option never appears
// in the input ("server" and "rsh" are Required in this schema).
type ErrMissingRequired struct{ Long string }

func (e *ErrMissingRequired) Error() string {
	return fmt.Sprintf("rsyncopts: required option --%s not present", e.Long)
}

// parseCapabilityToken decodes a -e/--rsh value's capability letters.
// The value must begin with '.'; every following character is either
// a known, possibly no-op capability letter, or a protocol error.
func parseCapabilityToken(c *Config, value string) error {
	rest, ok := strings.CutPrefix(value, ".")
	if !ok {
		return fmt.Errorf("rsyncopts: -e value %q does not start with '.'", value)
	}
	for _, r := range rest {
		switch r {
		case 'i':
			c.IncrementalRecurse = true
		case 'L', 's':
			// Reserved (symlink times / symlink iconv): accepted, no effect.
		case 'f':
			c.SafeFileList = true
		default:
			return fmt.Errorf("rsyncopts: unknown capability letter %q in -e value %q", r, value)
		}
	}
	return nil
}

// argKind describes whether an option consumes the next token as its
// value.
type argKind int

const (
	argNone argKind = iota
	argString
)

// presence describes whether an option must appear at least once.
type presence int

const (
	optional presence = iota
	required
)

// option is one row of the declarative schema: the table describes
// shape, the handler describes effect. Handlers run in encounter
// order; a later handler for the same field simply overwrites an
// earlier one, giving "last flag wins" semantics without bespoke
// precedence code.
type option struct {
	long     string
	short    string
	kind     argKind
	presence presence
	handler  func(c *Config, value string) error
}

// table is exactly the option schema from the handshake's §4.6.
var table = []option{
	{long: "server", kind: argNone, presence: required, handler: func(c *Config, _ string) error {
		c.Server = true
		return nil
	}},
	{long: "sender", kind: argNone, handler: func(c *Config, _ string) error {
		c.Sender = true
		return nil
	}},
	{long: "recursive", short: "r", kind: argNone, handler: func(c *Config, _ string) error {
		c.FileSelection = Recurse
		return nil
	}},
	{long: "no-r", kind: argNone, handler: func(c *Config, _ string) error {
		if c.FileSelection == Recurse {
			c.FileSelection = Exact
		}
		return nil
	}},
	{long: "rsh", short: "e", kind: argString, presence: required, handler: func(c *Config, v string) error {
		c.RemoteShell = v
		return parseCapabilityToken(c, v)
	}},
	{long: "ignore-times", short: "I", kind: argNone, handler: func(c *Config, _ string) error {
		c.IgnoreTimes = true
		return nil
	}},
	{long: "verbose", short: "v", kind: argNone, handler: func(c *Config, _ string) error {
		c.Verbosity++
		return nil
	}},
	{long: "delete", kind: argNone, handler: func(c *Config, _ string) error {
		c.Delete = true
		return nil
	}},
	{short: "D", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveDevices = true
		c.PreserveSpecials = true
		return nil
	}},
	{long: "specials", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveSpecials = true
		return nil
	}},
	{long: "no-specials", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveSpecials = false
		return nil
	}},
	{long: "links", short: "l", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveLinks = true
		return nil
	}},
	{long: "owner", short: "o", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveUser = true
		return nil
	}},
	{long: "group", short: "g", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveGroup = true
		return nil
	}},
	{long: "numeric-ids", kind: argNone, handler: func(c *Config, _ string) error {
		c.NumericIDs = true
		return nil
	}},
	{long: "perms", short: "p", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreservePermissions = true
		return nil
	}},
	{long: "times", short: "t", kind: argNone, handler: func(c *Config, _ string) error {
		c.PreserveTimes = true
		return nil
	}},
	{long: "dirs", short: "d", kind: argNone, handler: func(c *Config, _ string) error {
		c.FileSelection = TransferDirs
		return nil
	}},
}

func lookupLong(name string) (option, bool) {
	for _, o := range table {
		if o.long != "" && o.long == name {
			return o, true
		}
	}
	return option{}, false
}

func lookupShort(name string) (option, bool) {
	for _, o := range table {
		if o.short != "" && o.short == name {
			return o, true
		}
	}
	return option{}, false
}

// Parse applies args to a freshly zeroed Config in encounter order.
// Non-option arguments (anything not starting with '-', or appearing
// after a bare "--") accumulate into Config.Args. An unknown option is
// a protocol error: the peer here is rsync itself, not an interactive
// user, so the schema is deliberately closed.
func Parse(args []string) (*Config, error) {
	c := &Config{}
	seen := make(map[string]bool, len(table))
	noMoreOptions := false

	markSeen := func(o option) {
		if o.long != "" {
			seen[o.long] = true
		} else if o.short != "" {
			seen[o.short] = true
		}
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if noMoreOptions || a == "" || a[0] != '-' || a == "-" {
			c.Args = append(c.Args, a)
			continue
		}
		if a == "--" {
			noMoreOptions = true
			continue
		}
		switch {
		case strings.HasPrefix(a, "--"):
			name := a[2:]
			value := ""
			hasInlineValue := false
			if idx := strings.IndexByte(name, '='); idx >= 0 {
				value = name[idx+1:]
				name = name[:idx]
				hasInlineValue = true
			}
			opt, ok := lookupLong(name)
			if !ok {
				return nil, fmt.Errorf("rsyncopts: unknown option --%s", name)
			}
			if opt.kind == argString && !hasInlineValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("rsyncopts: option --%s requires a value", name)
				}
				i++
				value = args[i]
			}
			if err := opt.handler(c, value); err != nil {
				return nil, err
			}
			markSeen(opt)
		default:
			// Short option cluster, e.g. "-rtv" or "-e.if".
			letters := a[1:]
			for len(letters) > 0 {
				name := letters[:1]
				letters = letters[1:]
				opt, ok := lookupShort(name)
				if !ok {
					return nil, fmt.Errorf("rsyncopts: unknown option -%s", name)
				}
				if opt.kind == argString {
					value := letters
					if value == "" {
						if i+1 >= len(args) {
							return nil, fmt.Errorf("rsyncopts: option -%s requires a value", name)
						}
						i++
						value = args[i]
					}
					if err := opt.handler(c, value); err != nil {
						return nil, err
					}
					markSeen(opt)
					letters = ""
					continue
				}
				if err := opt.handler(c, ""); err != nil {
					return nil, err
				}
				markSeen(opt)
			}
		}
	}

	for _, o := range table {
		if o.presence != required {
			continue
		}
		key := o.long
		if key == "" {
			key = o.short
		}
		if !seen[key] {
			return nil, &ErrMissingRequired{Long: o.long}
		}
	}

	return c, nil
}

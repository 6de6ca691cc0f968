// Package flagx lets several config layers share one command line: each
// layer keeps only the flags it owns before handing them to a FlagSet.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps the arguments that belong to one of owned and drops the
// rest. Dashes are not significant, so "-p p1", "-p=p1" and "--p=p1" all
// match an owned "-p". A following token that does not start with a dash
// is kept as the flag's value. The result is never nil.
func FilterArgs(args []string, owned []string) []string {
	keep := make(map[string]bool, len(owned))
	for _, f := range owned {
		keep[flagName(f)] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		name, _, inline := strings.Cut(args[i], "=")
		if !strings.HasPrefix(name, "-") || !keep[flagName(name)] {
			continue
		}
		out = append(out, args[i])
		if !inline && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

func flagName(s string) string {
	return strings.TrimLeft(s, "-")
}

// ConfigPath returns the JSON config file given with -c or -config, or ""
// when there is none. Parse errors are swallowed; the owning layer reports
// them when it parses the full command line.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (shorthand)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}

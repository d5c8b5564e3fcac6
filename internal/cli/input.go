package cli

import "strings"

// VerbKind discriminates the handful of top-level verbs from a bare
// task-key invocation.
type VerbKind int

const (
	VerbTaskKey VerbKind = iota
	VerbList
	VerbClean
	VerbInvoke
	VerbInit
	VerbDump
)

// Invocation is the canonicalized form of argv[1:], per the command
// surface in spec.md §6: a top-level verb is a task kind; arguments
// after a colon select sub-tasks.
type Invocation struct {
	Verb       VerbKind
	TaskKey    string   // VerbTaskKey, VerbClean (scope), VerbDump (task key to dump)
	ListAll    bool     // VerbList with --all
	Plugin     string   // VerbInvoke
	PluginArgs []string // VerbInvoke
	Parallel   bool
	Concurrency int
}

// ParseInvocation canonicalizes argv into an Invocation, or an
// *InvocationError carrying ExitInvalidInvocation on a malformed
// command line.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("usage: alto <list|clean <scope>|invoke <plugin> <args...>|init|dump <task>|<task-key>> [--parallel] [--concurrency N]")
	}

	verb := args[0]
	rest := args[1:]

	inv := Invocation{Concurrency: 4}
	rest, inv = extractFlags(rest, inv)

	switch verb {
	case "list":
		inv.Verb = VerbList
		for _, a := range rest {
			if a == "--all" {
				inv.ListAll = true
			}
		}
		return inv, nil
	case "clean":
		if len(rest) == 0 {
			return Invocation{}, invalidInvocationf("clean requires a scope argument")
		}
		inv.Verb = VerbClean
		inv.TaskKey = rest[0]
		return inv, nil
	case "invoke":
		if len(rest) == 0 {
			return Invocation{}, invalidInvocationf("invoke requires a plugin name")
		}
		inv.Verb = VerbInvoke
		inv.Plugin = rest[0]
		inv.PluginArgs = rest[1:]
		return inv, nil
	case "init":
		inv.Verb = VerbInit
		return inv, nil
	case "dump":
		if len(rest) == 0 {
			return Invocation{}, invalidInvocationf("dump requires a task key")
		}
		inv.Verb = VerbDump
		inv.TaskKey = rest[0]
		return inv, nil
	default:
		if strings.HasPrefix(verb, "-") {
			return Invocation{}, invalidInvocationf("unrecognized option %q", verb)
		}
		inv.Verb = VerbTaskKey
		inv.TaskKey = verb
		return inv, nil
	}
}

// extractFlags pulls the shared --parallel/--concurrency flags out of a
// verb's trailing arguments, returning what's left for verb-specific
// parsing.
func extractFlags(args []string, inv Invocation) ([]string, Invocation) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--parallel":
			inv.Parallel = true
		case "--concurrency":
			if i+1 < len(args) {
				i++
				if n := parsePositiveInt(args[i]); n > 0 {
					inv.Concurrency = n
				}
			}
		default:
			out = append(out, args[i])
		}
	}
	return out, inv
}

func parsePositiveInt(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"alto/internal/altolog"
	"alto/internal/cli"
	"alto/internal/fs"
)

// main parses the process-level flags (project location, active
// overlay) separately from the verb invocation, builds the Project
// those flags describe, and hands both to cli.Execute. Loading the
// project descriptor from disk is the one piece of "CLI is out of
// scope, but its contract is" that still has to live somewhere callable.
func main() {
	workdir, descriptor, environment, verbose, rest, code := parseGlobalFlags(os.Args[1:])
	if code >= 0 {
		os.Exit(code)
	}

	inv, err := cli.ParseInvocation(rest)
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	project, err := buildProject(workdir, descriptor, environment, verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitConfigError)
	}

	result, execErr := cli.Execute(context.Background(), project, inv)
	if execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
	}
	if result == nil {
		os.Exit(cli.ExitInternalError)
	}
	os.Exit(result.ExitCode)
}

// parseGlobalFlags parses the flags that select a project rather than a
// verb. code is -1 when parsing succeeded; otherwise it is the exit code
// main should use immediately (flag.Parse already printed its own
// message on error).
func parseGlobalFlags(args []string) (workdir, descriptor, environment string, verbose bool, rest []string, code int) {
	fset := flag.NewFlagSet("alto", flag.ContinueOnError)
	fset.StringVar(&workdir, "workdir", "", "Project root directory. Defaults to the current directory.")
	fset.StringVar(&descriptor, "config", "alto.json", "Path to the project descriptor, resolved under --workdir.")
	fset.StringVar(&environment, "environment", "", "Active configuration overlay. Defaults to the ALTO_ENVIRONMENT variable, then \"default\".")
	fset.BoolVar(&verbose, "verbose", false, "Enable debug-level logging.")

	// Everything fset doesn't recognize as one of its own flags is left
	// in fset.Args(), so global flags must precede the verb on the
	// command line: `alto --workdir . list`, not `alto list --workdir .`.
	if err := fset.Parse(args); err != nil {
		return "", "", "", false, nil, cli.ExitInvalidInvocation
	}
	rest = fset.Args()

	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return "", "", "", false, nil, cli.ExitInternalError
		}
		workdir = wd
	}
	if !filepath.IsAbs(workdir) {
		abs, err := filepath.Abs(workdir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return "", "", "", false, nil, cli.ExitInternalError
		}
		workdir = abs
	}
	if environment == "" {
		environment = os.Getenv("ALTO_ENVIRONMENT")
	}
	if environment == "" {
		environment = "default"
	}
	return workdir, descriptor, environment, verbose, rest, -1
}

func buildProject(workdir, descriptor, environment string, verbose bool) (*cli.Project, error) {
	descriptorPath := descriptor
	if !filepath.IsAbs(descriptorPath) {
		descriptorPath = filepath.Join(workdir, descriptorPath)
	}
	specs, env, piiSalt, err := loadManifest(descriptorPath)
	if err != nil {
		return nil, err
	}

	remote, err := fs.NewLocal(filepath.Join(workdir, "alto"))
	if err != nil {
		return nil, fmt.Errorf("opening remote storage: %w", err)
	}

	log := altolog.New(verbose)

	settings := cli.Settings{
		ProjectRoot:    workdir,
		Environment:    environment,
		PIISalt:        piiSalt,
		GracePeriod:    10 * time.Second,
		InterpreterTag: runtimeInterpreterTag(),
		ArchTag:        runtimeArchTag(),
		Verbose:        verbose,
	}
	return cli.NewProject(settings, specs, env, remote, log)
}

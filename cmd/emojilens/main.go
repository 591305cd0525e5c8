// emojilens - annotate emoji in HTML documents with their names
//
//	emojilens annotate page.html     Annotate a document once
//	emojilens replay -html -ops      Replay DOM mutations against a live session
//	emojilens watch [dir...]         Write annotated copies as files change
//	emojilens serve                  Run the HTTP API
//	emojilens prefs get|set|reset    Manage display preferences
//	emojilens preview                Show the tooltip for an emoji
//	emojilens lexicon                Inspect the emoji name data
//	emojilens history                List recorded watch runs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// cli carries the process environment so commands can run under test.
type cli struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{ctx: ctx, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	code := c.run(os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(args []string) int {
	if len(args) < 1 {
		c.usage()
		return 2
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "annotate":
		err = c.cmdAnnotate(rest)
	case "replay":
		err = c.cmdReplay(rest)
	case "watch":
		err = c.cmdWatch(rest)
	case "serve":
		err = c.cmdServe(rest)
	case "prefs":
		err = c.cmdPrefs(rest)
	case "preview":
		err = c.cmdPreview(rest)
	case "lexicon":
		err = c.cmdLexicon(rest)
	case "history":
		err = c.cmdHistory(rest)
	case "version":
		err = c.cmdVersion(rest)
	case "help", "-h", "--help":
		c.usage()
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n\n", cmd)
		c.usage()
		return 2
	}

	var uerr *usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &uerr):
		fmt.Fprintf(c.stderr, "Usage: %s\n", uerr.msg)
		return 2
	default:
		fmt.Fprintf(c.stderr, "emojilens: %v\n", err)
		return 1
	}
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, `emojilens - emoji names for HTML documents

USAGE:
    emojilens <command> [options]

COMMANDS:
    annotate [-prefs f] [-set k=v] [-diff] [-o out] <file|->
                        Annotate every emoji in a document
    replay -html page.html -ops ops.jsonl [-o out]
                        Apply recorded DOM mutations to a live session
    watch [-out dir] [path...]
                        Write annotated copies of HTML files as they change
    serve [-listen addr]
                        Run the HTTP API
    prefs get [key] | set key=value... | reset
                        Show or change display preferences
    preview [-emoji e] [-name n] [-set k=v]
                        Show the tooltip an emoji would get
    lexicon [-file f] [-check] [-lookup seq]
                        Inspect the emoji name data
    history [-n count] [-status]
                        List recorded watch runs or the schema version
    version             Show version information
    help                Show this help message

Every command accepts -config <path> (default ~/.emojilens/config.toml).

PREFERENCE KEYS:
    enabled, showEmoji, showName, showCodePoints, showSkinTone`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func (c *cli) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "config file (default ~/.emojilens/config.toml)")
	return fs, configPath
}

// parse wraps flag errors so run reports them as usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usagef("emojilens %s: %v", fs.Name(), err)
	}
	return nil
}

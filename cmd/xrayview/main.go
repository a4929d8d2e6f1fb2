// Package main provides the xrayview CLI entrypoint.
//
// Usage:
//
//	xrayview [global options] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: analysis, backend or I/O failure
//   - 2: usage error or advisory (e.g. no file selected)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/cli/cmd"
	"github.com/pithecene-io/xrayview/cli/config"
	"github.com/pithecene-io/xrayview/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	// .env feeds the XRAYVIEW_* variables read during flag parsing.
	if err := config.LoadDotEnv(""); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	app := &cli.App{
		Name:           "xrayview",
		Usage:          "Upload dental X-rays for analysis and review the results",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.UICommand(),
			cmd.AnalyzeCommand(),
			cmd.PingCommand(),
			cmd.JournalCommand(),
			cmd.HistoryCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler prints err and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to an exit code and the message to print.
// cli.Exit("", N) carries no message.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}

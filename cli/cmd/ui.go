package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/cli/tui"
)

// UICommand returns the interactive upload & analyze screen.
func UICommand() *cli.Command {
	flags := append(SessionFlags(), &cli.StringFlag{
		Name:  "dir",
		Usage: "Directory the file picker opens in (default: working directory)",
	})
	return &cli.Command{
		Name:   "ui",
		Usage:  "Open the interactive upload & analyze screen",
		Flags:  flags,
		Action: uiAction,
	}
}

func uiAction(c *cli.Context) error {
	if !tui.IsTerminal(os.Stdout) {
		return cli.Exit("ui requires an interactive terminal; use 'xrayview analyze <file>' instead", exitUsage)
	}
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGTERM)
	defer stop()

	// Logs would draw over the screen, so they go to --log-file or nowhere.
	advisories := tui.NewAdvisories()
	sess, closeSession, err := openSession(ctx, s, nil, advisories.Advise)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSession(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	return tui.Run(ctx, tui.Options{
		Workflow:   sess.Workflow,
		LoadImage:  sess.LoadImage,
		Advisories: advisories,
		StartDir:   c.String("dir"),
	})
}

package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/cli/render"
	"github.com/pithecene-io/xrayview/journal"
)

// JournalCommand returns the journal command.
func JournalCommand() *cli.Command {
	return &cli.Command{
		Name:      "journal",
		Usage:     "Print a recorded state journal",
		ArgsUsage: "<path>",
		Flags: append(OutputFlags(), &cli.IntFlag{
			Name:  "tail",
			Usage: "Show only the last N entries (0 = all)",
		}),
		Action: journalAction,
	}
}

func journalAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if c.NArg() != 1 {
		return cli.Exit("journal requires exactly one path", exitUsage)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open journal: %v", err), exitFailure)
	}
	defer f.Close()

	entries, readErr := journal.ReadAll(f)
	if readErr != nil && !journal.IsTruncated(readErr) {
		return cli.Exit(fmt.Sprintf("cannot read journal: %v", readErr), exitFailure)
	}
	if readErr != nil {
		// A torn final frame is expected after a crash; show what was written.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", readErr)
	}

	if n := c.Int("tail"); n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return r.Render(entries)
}

package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/archive"
	"github.com/pithecene-io/xrayview/cli/render"
)

// HistoryRow is the table projection of an archive record.
type HistoryRow struct {
	RecordID    string    `json:"record_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Outcome     string    `json:"outcome"`
	File        string    `json:"file"`
	Findings    int       `json:"findings"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error"`
}

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	flags := append(OutputFlags(), ArchiveFlags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "day", Usage: "Only records from this day (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "outcome", Usage: "Only records with this outcome: success or failure"},
		&cli.IntFlag{Name: "limit", Usage: "Maximum records to show (0 = all)", Value: 20},
	)
	return &cli.Command{
		Name:   "history",
		Usage:  "List archived analyses, newest first",
		Flags:  flags,
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	switch c.String("outcome") {
	case "", archive.OutcomeSuccess, archive.OutcomeFailure:
	default:
		return cli.Exit("--outcome must be success or failure", exitUsage)
	}
	if day := c.String("day"); day != "" {
		if _, err := time.Parse(time.DateOnly, day); err != nil {
			return cli.Exit("--day must be YYYY-MM-DD", exitUsage)
		}
	}

	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if s.archive.Backend == "" {
		return cli.Exit("history requires an archive (--archive-backend or archive.backend)", exitUsage)
	}

	arch, err := s.openArchive(c.Context, "", "")
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	records, err := arch.List(c.Context, archive.Filter{
		Day:     c.String("day"),
		Outcome: c.String("outcome"),
		Limit:   c.Int("limit"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if r.Format() != render.FormatTable {
		if records == nil {
			records = []archive.Record{}
		}
		return r.Render(records)
	}
	rows := make([]HistoryRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, HistoryRow{
			RecordID:    rec.RecordID,
			SubmittedAt: rec.SubmittedAt,
			Outcome:     rec.Outcome,
			File:        rec.File,
			Findings:    len(rec.Predictions),
			DurationMs:  rec.DurationMs,
			Error:       rec.Error,
		})
	}
	return r.Render(rows)
}

// Package cmd provides CLI commands for the xrayview binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

// Output flags shared by every command that renders data.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:    "no-color",
		Usage:   "Disable colored output",
		EnvVars: []string{"NO_COLOR"},
	}
)

// OutputFlags returns the flags for rendered output.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag}
}

// GlobalFlags returns the app-level flags. Values set here override the
// config file; each flag also reads an XRAYVIEW_* environment variable.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to xrayview.yaml (default: ./xrayview.yaml if present)",
			EnvVars: []string{"XRAYVIEW_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "origin",
			Usage:   "Analysis backend origin (default: http://127.0.0.1:8000)",
			EnvVars: []string{"XRAYVIEW_ORIGIN"},
		},
		&cli.StringFlag{
			Name:    "image-fetch-limit",
			Usage:   "Maximum bytes read per result image, e.g. 32MB",
			EnvVars: []string{"XRAYVIEW_IMAGE_FETCH_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn, error",
			EnvVars: []string{"XRAYVIEW_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "Write JSON logs to this file instead of stderr",
			EnvVars: []string{"XRAYVIEW_LOG_FILE"},
		},
	}
}

// SessionFlags returns the side-effect flags for commands that submit.
func SessionFlags() []cli.Flag {
	return []cli.Flag{
		// Archive flags
		&cli.StringFlag{
			Name:    "archive-backend",
			Usage:   "Archive backend: fs or s3 (empty disables archiving)",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "archive-path",
			Usage:   "Archive location (fs: directory, s3: bucket/prefix)",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_PATH"},
		},
		&cli.StringFlag{
			Name:    "archive-dataset",
			Usage:   "Archive dataset ID (default: xrayview)",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_DATASET"},
		},
		&cli.StringFlag{
			Name:    "archive-region",
			Usage:   "AWS region for the s3 backend (optional, uses default chain)",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_REGION"},
		},
		&cli.StringFlag{
			Name:    "archive-endpoint",
			Usage:   "Custom S3 endpoint (MinIO, R2)",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_ENDPOINT"},
		},
		&cli.BoolFlag{
			Name:    "archive-s3-path-style",
			Usage:   "Use path-style S3 addressing",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_S3_PATH_STYLE"},
		},
		&cli.BoolFlag{
			Name:    "archive-images",
			Usage:   "Also archive both result images",
			EnvVars: []string{"XRAYVIEW_ARCHIVE_IMAGES"},
		},
		// Notify flags
		&cli.StringFlag{
			Name:    "notify-type",
			Usage:   "Completion notifier: webhook or redis (empty disables)",
			EnvVars: []string{"XRAYVIEW_NOTIFY_TYPE"},
		},
		&cli.StringFlag{
			Name:    "notify-url",
			Usage:   "Webhook URL or redis:// URL",
			EnvVars: []string{"XRAYVIEW_NOTIFY_URL"},
		},
		&cli.StringFlag{
			Name:    "notify-channel",
			Usage:   "Redis pub/sub channel (default: xrayview:analysis_completed)",
			EnvVars: []string{"XRAYVIEW_NOTIFY_CHANNEL"},
		},
		&cli.DurationFlag{
			Name:    "notify-timeout",
			Usage:   "Notification timeout",
			EnvVars: []string{"XRAYVIEW_NOTIFY_TIMEOUT"},
		},
		// Journal
		&cli.StringFlag{
			Name:    "journal",
			Usage:   "Record state transitions to this file",
			EnvVars: []string{"XRAYVIEW_JOURNAL"},
		},
	}
}

// archiveFlagNames are the SessionFlags the history command reuses.
var archiveFlagNames = map[string]bool{
	"archive-backend":       true,
	"archive-path":          true,
	"archive-dataset":       true,
	"archive-region":        true,
	"archive-endpoint":      true,
	"archive-s3-path-style": true,
}

// ArchiveFlags returns the subset of SessionFlags that locate an archive.
func ArchiveFlags() []cli.Flag {
	var out []cli.Flag
	for _, f := range SessionFlags() {
		if archiveFlagNames[f.Names()[0]] {
			out = append(out, f)
		}
	}
	return out
}

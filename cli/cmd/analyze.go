package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/xrayview/analysis"
	"github.com/pithecene-io/xrayview/cli/render"
	"github.com/pithecene-io/xrayview/session"
	"github.com/pithecene-io/xrayview/types"
	"github.com/pithecene-io/xrayview/view"
	"github.com/pithecene-io/xrayview/workflow"
)

// AnalyzeCommand returns the analyze command.
// It runs one select → submit cycle without the interactive UI.
func AnalyzeCommand() *cli.Command {
	flags := append(OutputFlags(), SessionFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:  "out",
		Usage: "Directory to save original.<ext> and annotated.<ext>",
	})
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Upload one X-ray file and print the analysis",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action:    analyzeAction,
	}
}

func analyzeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if c.NArg() > 1 {
		return cli.Exit("analyze takes exactly one file", exitUsage)
	}
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, closeSession, err := openSession(ctx, s, os.Stderr, stderrAdvisor)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSession(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	if path := c.Args().First(); path != "" {
		if _, err := os.Stat(path); err != nil {
			return cli.Exit(fmt.Sprintf("cannot read %s: %v", path, err), exitUsage)
		}
		file := types.LocalFile{Path: path}
		if !types.HasAdvisedExtension(file.Name()) {
			fmt.Fprintf(os.Stderr, "Warning: %s is not a DICOM (.dcm) or RVG (.rvg) file; uploading anyway\n", file.Name())
		}
		sess.Workflow.SelectFile(file)
	}

	out, err := runAnalysis(ctx, sess, c.String("out"))
	if errors.Is(err, workflow.ErrNoFileSelected) {
		return cli.Exit("", exitUsage)
	}
	if rerr := r.Render(out); rerr != nil {
		return rerr
	}
	if err != nil {
		return cli.Exit("", exitFailure)
	}
	return nil
}

// runAnalysis submits the selected file, loads both result images and
// optionally saves them to outDir. The returned output reflects the final
// state even when err is non-nil.
func runAnalysis(ctx context.Context, sess *session.Session, outDir string) (render.Analysis, error) {
	submitErr := sess.Workflow.Submit(ctx)
	if errors.Is(submitErr, workflow.ErrNoFileSelected) {
		return render.Analysis{}, submitErr
	}

	var saved map[string]string
	state := sess.Workflow.Snapshot()
	if submitErr == nil {
		images := map[string]string{
			"original":  state.OriginalImageURL,
			"annotated": state.AnnotatedImageURL,
		}
		for _, name := range []string{"original", "annotated"} {
			img, err := sess.LoadImage(ctx, images[name])
			if err != nil {
				// The analysis itself succeeded; a missing image is reported
				// in metrics and the panel stays hidden.
				continue
			}
			if outDir == "" {
				continue
			}
			p, err := saveImage(outDir, name, img)
			if err != nil {
				submitErr = err
				break
			}
			if saved == nil {
				saved = map[string]string{}
			}
			saved[name] = p
		}
	}

	return render.Analysis{
		Page:    view.Build(sess.Workflow.Snapshot()),
		Saved:   saved,
		Metrics: sess.Metrics.Snapshot(),
	}, submitErr
}

func saveImage(dir, name string, img *analysis.Image) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	p := filepath.Join(dir, name+"."+img.Format)
	if err := os.WriteFile(p, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("save %s image: %w", name, err)
	}
	return p, nil
}

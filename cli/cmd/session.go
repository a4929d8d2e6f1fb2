package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/pithecene-io/xrayview/session"
	"github.com/pithecene-io/xrayview/workflow"
)

// openSession builds a session from resolved settings. The returned close
// function flushes the journal, notifier and log sink.
func openSession(ctx context.Context, s *settings, logFallback io.Writer, advisor workflow.Advisor) (*session.Session, func() error, error) {
	id := uuid.NewString()

	client, err := s.client()
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := s.logger(id, logFallback)
	if err != nil {
		return nil, nil, err
	}

	arch, err := s.openArchive(ctx, id, client.Origin())
	if err != nil {
		_ = closeLog()
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	notifier, err := s.openNotifier()
	if err != nil {
		_ = closeLog()
		return nil, nil, fmt.Errorf("open notifier: %w", err)
	}

	sess, err := session.New(session.Config{
		ID:             id,
		Client:         client,
		Logger:         logger,
		Advisor:        advisor,
		Archive:        arch,
		ArchiveBackend: s.archive.Backend,
		ArchiveImages:  s.archive.Images,
		Notifier:       notifier,
		NotifierName:   s.notify.Type,
		JournalPath:    s.journal,
	})
	if err != nil {
		if notifier != nil {
			_ = notifier.Close()
		}
		_ = closeLog()
		return nil, nil, err
	}

	return sess, func() error {
		return errors.Join(sess.Close(), closeLog())
	}, nil
}

// stderrAdvisor prints advisories for headless commands.
func stderrAdvisor(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}

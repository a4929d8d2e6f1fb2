// Package archive stores settled analyses in a Lode dataset.
//
// Records are JSONL rows partitioned by day and outcome. Result images can
// be stored next to their record under the partition's files/ prefix.
// The archive is write-mostly: the history command reads it back.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/xrayview/types"
	"github.com/pithecene-io/xrayview/workflow"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "xrayview"

// partitionKeys is the Hive layout of the dataset.
var partitionKeys = []string{"day", "outcome"}

// ErrInvalidFilename is returned by PutImage for names with path elements.
var ErrInvalidFilename = errors.New("invalid image filename")

// Config identifies what the archive writes.
type Config struct {
	Dataset   string
	SessionID string
	Origin    string
}

// Archive writes analysis records to Lode.
type Archive struct {
	cfg     Config
	dataset lode.Dataset
	factory lode.StoreFactory
	now     func() time.Time

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// New creates an archive over factory. Use lode.NewMemoryFactory() in tests.
func New(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := openDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, wrap("init", cfg.Dataset, err)
	}
	return &Archive{cfg: cfg, dataset: ds, factory: factory, now: time.Now}, nil
}

// NewFS creates an archive rooted at a local directory.
func NewFS(cfg Config, root string) (*Archive, error) {
	return New(cfg, lode.NewFSFactory(root))
}

func openDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// RecordFromSettlement builds the record for a settled submission.
func (a *Archive) RecordFromSettlement(s workflow.Settlement) Record {
	r := Record{
		RecordID:    uuid.NewString(),
		SessionID:   a.cfg.SessionID,
		Day:         s.StartedAt.UTC().Format(time.DateOnly),
		Outcome:     OutcomeSuccess,
		Origin:      a.cfg.Origin,
		SubmittedAt: s.StartedAt,
		DurationMs:  s.Duration.Milliseconds(),
		Version:     types.Version,
	}
	if s.File != nil {
		r.File = s.File.Name()
	}
	if s.Err != nil {
		r.Outcome = OutcomeFailure
		r.Error = s.Err.Error()
		return r
	}
	if s.Result != nil {
		r.OriginalImageURL = s.Result.OriginalImageURL
		r.AnnotatedImageURL = s.Result.AnnotatedImageURL
		r.Report = s.Result.Report
		r.Predictions = s.Result.Predictions
	}
	return r
}

// Write stores a single record as one dataset snapshot.
func (a *Archive) Write(ctx context.Context, r Record) error {
	if r.Day == "" {
		r.Day = a.now().UTC().Format(time.DateOnly)
	}
	if r.Outcome == "" {
		return fmt.Errorf("record %s: outcome is required", r.RecordID)
	}
	if _, err := a.dataset.Write(ctx, []any{r.toMap()}, lode.Metadata{}); err != nil {
		return wrap("write", a.cfg.Dataset, err)
	}
	return nil
}

// PutImage stores image bytes under the record's partition.
// Returns the store path.
func (a *Archive) PutImage(ctx context.Context, r Record, filename string, data []byte) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	store, err := a.getStore()
	if err != nil {
		return "", wrap("init", a.cfg.Dataset, err)
	}
	p := a.imagePath(r, filename)
	if err := store.Put(ctx, p, bytes.NewReader(data)); err != nil {
		return "", wrap("put", p, err)
	}
	return p, nil
}

// imagePath is datasets/<ds>/partitions/day=<d>/outcome=<o>/files/<record_id>/<name>.
func (a *Archive) imagePath(r Record, filename string) string {
	return path.Join(
		"datasets", a.cfg.Dataset, "partitions",
		"day="+r.Day, "outcome="+r.Outcome,
		"files", r.RecordID, filename,
	)
}

func (a *Archive) getStore() (lode.Store, error) {
	a.storeOnce.Do(func() {
		a.store, a.storeErr = a.factory()
	})
	return a.store, a.storeErr
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Day     string
	Outcome string
	Limit   int
}

// List returns records newest first.
func (a *Archive) List(ctx context.Context, f Filter) ([]Record, error) {
	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", a.cfg.Dataset+"/snapshots", err)
	}

	var out []Record
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !matchesFilter(snap, "day", f.Day) || !matchesFilter(snap, "outcome", f.Outcome) {
			continue
		}
		rows, err := a.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", a.cfg.Dataset, snap.ID), err)
		}
		for _, row := range rows {
			m, ok := row.(map[string]any)
			if !ok || m["record_kind"] != RecordKindAnalysis {
				continue
			}
			r := recordFromMap(m)
			if (f.Day != "" && r.Day != f.Day) || (f.Outcome != "" && r.Outcome != f.Outcome) {
				continue
			}
			out = append(out, r)
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// matchesFilter is a coarse pre-filter on manifest paths; record fields
// are authoritative.
func matchesFilter(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, file := range snap.Manifest.Files {
		for _, part := range strings.Split(file.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

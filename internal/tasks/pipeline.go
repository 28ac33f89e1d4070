package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/blob"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/sync/singleflight"
)

// runTimeout bounds a shared acquisition run once it no longer follows any caller's context.
const runTimeout = 5 * time.Minute

// RecordStore persists acquisitions. Implemented by repositories.AcquisitionRepository.
type RecordStore interface {
	Get(ctx context.Context, userID, trackRef string) (*models.AcquisitionRecord, error)
	Create(ctx context.Context, rec *models.AcquisitionRecord) error
}

// Converter turns a catalog URL into downloadable audio. Implemented by services.ConverterService.
type Converter interface {
	Convert(ctx context.Context, catalogURL string) (*models.ConversionData, error)
	Download(ctx context.Context, link string) ([]byte, string, error)
}

// BlobStore stores audio payloads. Implemented by blob.FileStore.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Catalog provides per-user catalog lookups. Implemented by services.UserCatalog.
type Catalog interface {
	Track(ctx context.Context, userID, trackID string) (*models.CatalogTrack, error)
	SavedTracks(ctx context.Context, userID string, limit int) ([]models.CatalogTrack, error)
}

// AcquireRequest identifies the track to acquire. Either TrackRef or CatalogURL must be set.
type AcquireRequest struct {
	UserID     string
	TrackRef   string
	CatalogURL string
}

// Pipeline acquires tracks: it converts a catalog reference into stored audio and records it
// exactly once per (user, track).
//
// Concurrent requests for the same pair in this process share one run. The run is detached from
// the caller that started it, so each caller stops waiting on its own context without failing the
// others. The UNIQUE constraint in the record store is what guarantees a single record across
// processes.
type Pipeline struct {
	records   RecordStore
	converter Converter
	blobs     BlobStore
	catalog   Catalog
	mirror    *Mirror
	logger    *log.Logger
	flight    singleflight.Group
}

// NewPipeline creates a Pipeline from its required collaborators.
func NewPipeline(records RecordStore, converter Converter, blobs BlobStore, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Pipeline{records: records, converter: converter, blobs: blobs, logger: logger}
}

// SetCatalog enables duration enrichment and saved-track acquisition.
func (p *Pipeline) SetCatalog(catalog Catalog) {
	p.catalog = catalog
}

// SetMirror enables best-effort mirroring of catalog metadata after each new acquisition.
func (p *Pipeline) SetMirror(m *Mirror) {
	p.mirror = m
}

type outcome struct {
	record   *models.AcquisitionRecord
	existing bool
}

// Acquire returns the user's record for the track, running conversion, transfer, storage and
// recording when none exists yet.
//
// Failures are [*StageError] values naming the failed stage, except ctx.Err() when the caller
// stops waiting. Nothing is recorded unless every earlier stage succeeded, so retrying after an
// error is always safe.
func (p *Pipeline) Acquire(ctx context.Context, req AcquireRequest, progress chan<- ProgressUpdate) (*models.AcquisitionRecord, error) {
	out, err := p.acquire(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	return out.record, nil
}

func (p *Pipeline) acquire(ctx context.Context, req AcquireRequest, progress chan<- ProgressUpdate) (outcome, error) {
	if req.UserID == "" {
		return outcome{}, stageError(Lookup, fmt.Errorf("%w: user id", shared.ErrMissingArgument))
	}

	ref, catalogURL, err := ResolveReference(req.TrackRef, req.CatalogURL)
	if err != nil {
		return outcome{}, stageError(Resolve, err)
	}

	relay := &progressRelay{ch: progress}
	defer relay.detach()

	results := p.flight.DoChan(req.UserID+"/"+ref, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runTimeout)
		defer cancel()
		return p.run(runCtx, req.UserID, ref, catalogURL, relay)
	})

	select {
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return outcome{}, res.Err
		}
		return res.Val.(outcome), nil
	}
}

func (p *Pipeline) run(ctx context.Context, userID, ref, catalogURL string, progress *progressRelay) (outcome, error) {
	logger := p.logger.With("user", userID, "track", ref)

	progress.send(stageUpdate(Lookup, ref))
	existing, err := p.records.Get(ctx, userID, ref)
	switch {
	case err == nil:
		progress.send(alreadyAcquiredUpdate(existing))
		return outcome{record: existing, existing: true}, nil
	case errors.Is(err, shared.ErrRecordNotFound):
	default:
		logger.Warn("acquisition lookup failed, continuing", "error", err)
	}

	progress.send(stageUpdate(Resolve, ref))
	logger.Debug("resolved catalog url", "url", catalogURL)

	progress.send(stageUpdate(Convert, ref))
	conversion, err := p.converter.Convert(ctx, catalogURL)
	if err != nil {
		logger.Warn("conversion failed", "stage", Convert, "error", err)
		return outcome{}, stageError(Convert, err)
	}

	progress.send(stageUpdate(Transfer, ref))
	payload, contentType, err := p.converter.Download(ctx, conversion.DownloadLink)
	if err != nil {
		logger.Warn("transfer failed", "stage", Transfer, "error", err)
		return outcome{}, stageError(Transfer, err)
	}

	progress.send(stageUpdate(Store, ref))
	key := blob.Key(userID, ref)
	if err := p.blobs.Put(ctx, key, payload, contentType); err != nil {
		logger.Error("storage write failed", "stage", Store, "key", key, "error", err)
		if !errors.Is(err, shared.ErrStorageWriteFailed) {
			err = fmt.Errorf("%w: %v", shared.ErrStorageWriteFailed, err)
		}
		return outcome{}, stageError(Store, err)
	}

	rec := &models.AcquisitionRecord{
		UserID:     userID,
		TrackRef:   ref,
		Title:      conversion.Title,
		Artist:     conversion.Artist,
		Album:      conversion.Album,
		CoverURL:   conversion.Cover,
		StorageKey: key,
	}
	track := p.enrich(ctx, logger, rec)

	progress.send(stageUpdate(Record, ref))
	if err := p.records.Create(ctx, rec); err != nil {
		if !errors.Is(err, shared.ErrRecordConflict) {
			logger.Error("failed to record acquisition", "stage", Record, "error", err)
			return outcome{}, stageError(Record, err)
		}

		winner, getErr := p.records.Get(ctx, userID, ref)
		if getErr != nil {
			return outcome{}, stageError(Record, fmt.Errorf("%w: re-read after conflict: %v", shared.ErrRecordConflict, getErr))
		}
		logger.Info("acquisition raced, returning existing record", "key", winner.StorageKey)
		progress.send(alreadyAcquiredUpdate(winner))
		return outcome{record: winner, existing: true}, nil
	}

	logger.Info("track acquired", "key", key, "bytes", len(payload))
	progress.send(acquiredUpdate(rec))

	if track != nil {
		p.mirror.Dispatch(*track)
	}
	return outcome{record: rec}, nil
}

// enrich fills the duration, and any metadata the provider left blank, from the catalog.
// Lookup failures only cost the enrichment.
func (p *Pipeline) enrich(ctx context.Context, logger *log.Logger, rec *models.AcquisitionRecord) *models.CatalogTrack {
	if p.catalog == nil {
		return nil
	}

	track, err := p.catalog.Track(ctx, rec.UserID, rec.TrackRef)
	if err != nil {
		logger.Debug("catalog enrichment skipped", "error", err)
		return nil
	}

	rec.DurationMs = track.DurationMs
	if rec.Title == "" {
		rec.Title = track.Title
	}
	if rec.Artist == "" {
		rec.Artist = track.Artist()
	}
	if rec.Album == "" {
		rec.Album = track.Album
	}
	if rec.CoverURL == "" {
		rec.CoverURL = track.CoverURL
	}
	return track
}

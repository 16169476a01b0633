// Package services implements attachment synchronization: converging the
// remote attachment set of one listing to a caller-supplied desired list.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/estatesync/internal/checksum"
	"github.com/dmitrijs2005/estatesync/internal/gateway"
	"github.com/dmitrijs2005/estatesync/internal/logging"
	"github.com/dmitrijs2005/estatesync/internal/metrics"
	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/dmitrijs2005/estatesync/internal/source"
	"github.com/google/uuid"
)

var (
	ErrInvalidEntry = errors.New("invalid desired entry")
	ErrMissingPath  = errors.New("attachment has no content source")
)

type AttachmentSyncService interface {
	// Synchronize makes the remote attachments equal the desired entries.
	// Attachments are updated in place (ID, ExternalID, ExternalCheckSum,
	// VideoID) and the same outcome is returned as a report. The first error
	// aborts the run; remote state may then be partially converged and a
	// rerun completes it.
	Synchronize(ctx context.Context, entries []models.Entry) (*models.Report, error)
}

// Journal records synchronization runs; *journal.Repository implements it.
type Journal interface {
	BeginRun(ctx context.Context, runID, listingID string, entries int) error
	RecordAction(ctx context.Context, runID string, action models.Action, a *models.Attachment) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}

var newRunID = uuid.NewString

type attachmentSyncService struct {
	gateway   gateway.AttachmentGateway
	opener    source.Opener
	logger    logging.Logger
	metrics   metrics.Recorder
	journal   Journal
	listingID string
}

type Option func(*attachmentSyncService)

func WithLogger(l logging.Logger) Option {
	return func(s *attachmentSyncService) { s.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *attachmentSyncService) { s.metrics = m }
}

// WithJournal records every run of listingID in j.
func WithJournal(j Journal, listingID string) Option {
	return func(s *attachmentSyncService) {
		s.journal = j
		s.listingID = listingID
	}
}

func NewAttachmentSyncService(gw gateway.AttachmentGateway, opener source.Opener, opts ...Option) AttachmentSyncService {
	s := &attachmentSyncService{
		gateway: gw,
		opener:  opener,
		logger:  logging.Nop(),
		metrics: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// syncRun holds the state of one Synchronize call. snapshot is the working
// copy of the remote set, updated as actions are taken and never refetched.
type syncRun struct {
	*attachmentSyncService
	id       string
	logger   logging.Logger
	report   *models.Report
	snapshot []*models.Attachment
}

func (s *attachmentSyncService) Synchronize(ctx context.Context, entries []models.Entry) (_ *models.Report, err error) {
	if err := validate(entries); err != nil {
		return nil, err
	}

	run := &syncRun{
		attachmentSyncService: s,
		id:                    newRunID(),
		report:                &models.Report{},
	}
	run.report.RunID = run.id
	run.logger = s.logger.With("sync_id", run.id)

	if s.journal != nil {
		if err := s.journal.BeginRun(ctx, run.id, s.listingID, len(entries)); err != nil {
			return nil, fmt.Errorf("begin journal run: %w", err)
		}
		defer func() {
			if ferr := s.journal.FinishRun(ctx, run.id, err); ferr != nil {
				run.logger.Warn(ctx, "journal finish failed", "error", ferr)
			}
		}()
	}

	run.logger.Info(ctx, "synchronization started", "entries", len(entries))

	if err := run.fillChecksums(ctx, entries); err != nil {
		run.logger.Error(ctx, "checksum pass failed", "error", err)
		return nil, err
	}
	run.fillExternalIDs(entries)

	remote, err := s.gateway.List(ctx)
	if err != nil {
		return nil, err
	}
	run.snapshot = remote
	run.logger.Info(ctx, "remote attachments listed", "count", len(remote))

	if err := run.deleteUnused(ctx, entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := run.createOrUpdate(ctx, e); err != nil {
			return nil, err
		}
	}
	if err := run.reorder(ctx, entries); err != nil {
		return nil, err
	}

	run.logger.Info(ctx, "synchronization finished",
		"deleted", len(run.report.Deleted), "reordered", run.report.Order != nil)
	return run.report, nil
}

func validate(entries []models.Entry) error {
	for i, e := range entries {
		a := e.Attachment
		if a == nil {
			return fmt.Errorf("%w: entry %d has no attachment", ErrInvalidEntry, i)
		}
		if !a.Kind.Valid() {
			return fmt.Errorf("%w: entry %d: %w %q", ErrInvalidEntry, i, models.ErrUnknownKind, a.Kind)
		}
		// A file attachment without a path or a checksum can neither be
		// matched by content nor uploaded, even when it carries a remote id.
		if a.Kind != models.KindLink && e.Path == "" && a.ExternalCheckSum == "" {
			return fmt.Errorf("%w: entry %d %q", ErrMissingPath, i, a.Title)
		}
	}
	return nil
}

func (r *syncRun) fillChecksums(ctx context.Context, entries []models.Entry) error {
	for _, e := range entries {
		a := e.Attachment
		if a.ExternalCheckSum != "" || e.Path == "" {
			continue
		}
		sum, err := checksum.File(ctx, r.opener, e.Path)
		if err != nil {
			return err
		}
		a.ExternalCheckSum = sum
	}
	return nil
}

func (r *syncRun) fillExternalIDs(entries []models.Entry) {
	for _, e := range entries {
		a := e.Attachment
		if a.ExternalID == "" && e.Path != "" {
			a.ExternalID = checksum.ExternalID(a.Title, e.Path)
		}
	}
}

// deleteUnused removes every remote attachment without a content-equal
// desired entry. Changed content is deleted here and recreated later.
func (r *syncRun) deleteUnused(ctx context.Context, entries []models.Entry) error {
	kept := r.snapshot[:0:0]
	for _, remote := range r.snapshot {
		wanted := slices.ContainsFunc(entries, func(e models.Entry) bool {
			return e.Attachment.ContentEqual(remote)
		})
		if wanted {
			kept = append(kept, remote)
			continue
		}
		if err := r.gateway.Delete(ctx, remote.ID); err != nil {
			return err
		}
		r.report.Deleted = append(r.report.Deleted, remote.ID)
		r.logger.Info(ctx, "attachment deleted", "id", remote.ID, "kind", remote.Kind, "title", remote.Title)
		if err := r.record(ctx, models.ActionDeleted, remote); err != nil {
			return err
		}
	}
	r.snapshot = kept
	return nil
}

func (r *syncRun) createOrUpdate(ctx context.Context, e models.Entry) error {
	a := e.Attachment

	idx := slices.IndexFunc(r.snapshot, a.SameIdentity)
	if idx >= 0 {
		remote := r.snapshot[idx]
		a.ID = remote.ID
		if a.VideoID == "" {
			a.VideoID = remote.VideoID
		}
		if a.Title == remote.Title {
			return r.result(ctx, e, models.ActionKept)
		}
		if err := r.gateway.Update(ctx, a); err != nil {
			return err
		}
		remote.Title = a.Title
		r.logger.Info(ctx, "attachment updated", "id", a.ID, "title", a.Title)
		return r.result(ctx, e, models.ActionUpdated)
	}

	if err := r.create(ctx, e); err != nil {
		return err
	}
	r.snapshot = append(r.snapshot, a.Clone())
	r.logger.Info(ctx, "attachment created", "id", a.ID, "kind", a.Kind, "title", a.Title)
	return r.result(ctx, e, models.ActionCreated)
}

func (r *syncRun) create(ctx context.Context, e models.Entry) error {
	a := e.Attachment
	if a.Kind == models.KindLink {
		_, err := r.gateway.CreateLink(ctx, a)
		return err
	}

	if e.Path == "" {
		return fmt.Errorf("%w: %s %q", ErrMissingPath, a.Kind, a.Title)
	}
	data, err := source.ReadAll(ctx, r.opener, e.Path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", checksum.ErrRead, e.Path, err)
	}
	name := source.FileName(e.Path)

	if a.Kind == models.KindStreamingVideo {
		_, err = r.gateway.CreateStreamingVideo(ctx, a, data, name)
		return err
	}
	_, err = r.gateway.CreateFile(ctx, a, data, name, source.DetectMIME(data))
	return err
}

// reorder sends the desired picture and PDF order when the remote order
// differs. Stale ids in the remote order are ignored.
func (r *syncRun) reorder(ctx context.Context, entries []models.Entry) error {
	ordered := 0
	for _, a := range r.snapshot {
		if a.ParticipatesInOrder() {
			ordered++
		}
	}
	if ordered <= 1 {
		return nil
	}

	// Entries sharing an identity adopt the same id; the first one places it.
	var target []int64
	for _, e := range entries {
		if e.Attachment.ParticipatesInOrder() && !slices.Contains(target, e.Attachment.ID) {
			target = append(target, e.Attachment.ID)
		}
	}

	current, err := r.gateway.GetOrder(ctx)
	if err != nil {
		return err
	}
	current = slices.DeleteFunc(current, func(id int64) bool {
		return !slices.Contains(target, id)
	})
	if slices.Equal(current, target) {
		return nil
	}

	if err := r.gateway.SetOrder(ctx, target); err != nil {
		return err
	}
	r.report.Order = target
	r.logger.Info(ctx, "attachment order set", "ids", target)
	return r.record(ctx, models.ActionReordered, nil)
}

func (r *syncRun) result(ctx context.Context, e models.Entry, action models.Action) error {
	r.report.Results = append(r.report.Results, models.Result{Entry: e, Action: action})
	if action == models.ActionKept {
		r.metrics.IncAction(string(action))
		return nil
	}
	return r.record(ctx, action, e.Attachment)
}

func (r *syncRun) record(ctx context.Context, action models.Action, a *models.Attachment) error {
	r.metrics.IncAction(string(action))
	if r.journal == nil {
		return nil
	}
	if err := r.journal.RecordAction(ctx, r.id, action, a); err != nil {
		return fmt.Errorf("journal %s: %w", action, err)
	}
	return nil
}

package deploy

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/splax/backendless/internal/apierror"
	"github.com/splax/backendless/internal/blob"
	"github.com/splax/backendless/internal/notify"
	"github.com/splax/backendless/internal/staging"
)

// StaticField is the multipart field carrying the static archive.
const StaticField = "static"

var archiveContentTypes = map[string]struct{}{
	"application/zip":              {},
	"application/x-zip-compressed": {},
	"application/x-zip":            {},
	"multipart/x-zip":              {},
}

// IngestResult summarises an archive upload.
type IngestResult struct {
	Uploaded int      `json:"uploaded"`
	Rejected []string `json:"rejected"`
}

type archiveEntry struct {
	file *zip.File
	path string
}

// Ingest reads the static archive from form, stores every entry under the
// project namespace and marks the deployment complete. Entries whose path
// would escape the namespace are skipped and reported in Rejected. A nil form
// means the request body was not multipart.
func (s Service) Ingest(ctx context.Context, userID, projectID, deploymentID string, form *multipart.Reader) (*IngestResult, error) {
	deployment, err := s.ownedDeployment(ctx, userID, projectID, deploymentID)
	if err != nil {
		return nil, err
	}
	if deployment.HasStatic {
		return nil, apierror.PreconditionFailed(reasonAlreadyHasStatic)
	}
	m := ingestCounters()
	if form == nil {
		return nil, apierror.Validation("expected a multipart/form-data body")
	}

	part, err := findPart(form, StaticField)
	if err != nil {
		return nil, err
	}
	defer part.Close()
	if !isArchiveContentType(part.Header.Get("Content-Type")) {
		m.failed("unsupported_media")
		return nil, apierror.UnsupportedMedia(reasonNotZip)
	}

	staged, size, err := s.staging.Stage(ctx, deployment.ID, part, s.cfg.UploadMaxBytes)
	if err != nil {
		if errors.Is(err, staging.ErrTooLarge) {
			m.failed("payload_too_large")
			return nil, apierror.PayloadTooLarge(reasonUploadTooLarge)
		}
		m.failed("staging")
		return nil, apierror.Internal("stage upload", err)
	}
	defer func() {
		staged.Close()
		if err := s.staging.Remove(staged.Name()); err != nil {
			s.logger.Warn("staged upload cleanup failed", "path", staged.Name(), "error", err)
		}
	}()

	archive, err := zip.NewReader(staged, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		m.failed("invalid_zip")
		return nil, apierror.Validation(reasonInvalidZip)
	}

	entries, rejected, err := s.planEntries(archive)
	if err != nil {
		m.failed("entry_too_large")
		return nil, err
	}
	for _, name := range rejected {
		m.rejected()
		s.logger.Warn("archive entry rejected", "deployment_id", deployment.ID, "entry", name)
	}

	if err := s.extract(ctx, deployment.ProjectID, entries); err != nil {
		m.failed("extract")
		if ctx.Err() != nil {
			return nil, apierror.Internal("upload aborted", ctx.Err())
		}
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, apierror.Internal("extract archive", err)
	}

	transitioned, err := s.deployments.MarkDeploymentStatic(ctx, deployment.ID)
	if err != nil {
		m.failed("transition")
		return nil, apierror.Internal("mark deployment static", err)
	}
	if !transitioned {
		m.failed("transition")
		return nil, apierror.PreconditionFailed(reasonAlreadyHasStatic)
	}

	s.logger.Info("static assets ingested",
		"project_id", deployment.ProjectID,
		"deployment_id", deployment.ID,
		"uploaded", len(entries),
		"rejected", len(rejected),
		"archive_bytes", size,
	)
	s.notify(ctx, notify.ChannelPublish, deployment.ProjectID)
	return &IngestResult{Uploaded: len(entries), Rejected: rejected}, nil
}

// findPart advances form to the named field, skipping any other parts.
func findPart(form *multipart.Reader, field string) (*multipart.Part, error) {
	for {
		part, err := form.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apierror.Validation(reasonMissingStaticField)
		}
		if err != nil {
			return nil, apierror.Validation("malformed multipart body")
		}
		if part.FormName() == field {
			return part, nil
		}
		part.Close()
	}
}

func isArchiveContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	_, ok := archiveContentTypes[strings.ToLower(mediaType)]
	return ok
}

// planEntries sanitizes entry names and enforces the per entry size limit
// before anything is written.
func (s Service) planEntries(archive *zip.Reader) ([]archiveEntry, []string, error) {
	entries := make([]archiveEntry, 0, len(archive.File))
	rejected := []string{}
	for _, f := range archive.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		clean, ok := sanitizeEntryPath(f.Name)
		if !ok {
			rejected = append(rejected, f.Name)
			continue
		}
		if s.cfg.EntryMaxBytes > 0 && f.UncompressedSize64 > uint64(s.cfg.EntryMaxBytes) {
			return nil, nil, apierror.Validation(fmt.Sprintf("archive entry %s exceeds size limit", clean))
		}
		entries = append(entries, archiveEntry{file: f, path: clean})
	}
	return entries, rejected, nil
}

// extract uploads entries concurrently. Each upload holds a slot of the
// process wide semaphore so parallel requests share one bounded pool.
func (s Service) extract(ctx context.Context, projectID string, entries []archiveEntry) error {
	m := ingestCounters()
	g, gctx := errgroup.WithContext(ctx)
	workers := s.cfg.IngestWorkers
	if workers <= 0 {
		workers = defaultIngestWorkers
	}
	g.SetLimit(workers)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if err := s.slots.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.slots.Release(1)

			data, err := s.readEntry(entry)
			if err != nil {
				return err
			}
			key := blob.Key(projectID, entry.path)
			if err := s.blobs.Put(gctx, key, data, contentTypeFor(entry.path, data)); err != nil {
				return fmt.Errorf("store %s: %w", key, err)
			}
			m.uploaded(len(data))
			return nil
		})
	}
	return g.Wait()
}

func (s Service) readEntry(entry archiveEntry) ([]byte, error) {
	rc, err := entry.file.Open()
	if err != nil {
		return nil, apierror.Validation(reasonInvalidZip)
	}
	defer rc.Close()

	var r io.Reader = rc
	if s.cfg.EntryMaxBytes > 0 {
		r = io.LimitReader(rc, s.cfg.EntryMaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apierror.Validation(reasonInvalidZip)
	}
	if s.cfg.EntryMaxBytes > 0 && int64(len(data)) > s.cfg.EntryMaxBytes {
		return nil, apierror.Validation(fmt.Sprintf("archive entry %s exceeds size limit", entry.path))
	}
	return data, nil
}

// contentTypeFor prefers the extension, then sniffs the content.
func contentTypeFor(name string, data []byte) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt != nil {
			return mt.String()
		}
	}
	return blob.DefaultContentType
}

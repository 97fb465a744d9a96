package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
)

// ProgressFunc is called after each uploaded file.
type ProgressFunc func(done, total int, file string)

// FileHandle is a downloaded attachment.
type FileHandle struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

// AttachFiles uploads paths to the published page id, one at a time in the
// given order. The first failure stops the batch; later files are not tried.
func (e *Engine) AttachFiles(ctx context.Context, id model.Identity, paths []string) error {
	return e.AttachFilesWithProgress(ctx, id, paths, nil)
}

// AttachFilesWithProgress is AttachFiles reporting each upload to progress.
func (e *Engine) AttachFilesWithProgress(ctx context.Context, id model.Identity, paths []string, progress ProgressFunc) error {
	const op = "attach"
	if err := id.Validate(); err != nil {
		return opErr(op, id, ErrInvalidIdentity, err)
	}
	if !e.registry.IsPublished(id) {
		return opErr(op, id, ErrNotPublished, nil)
	}
	log := logging.WithContext(ctx).With(logging.Operation(op), logging.Identity(id.String()))

	unlock := e.locks.Lock(id)
	defer unlock()

	for i, path := range paths {
		err := remoteDo(ctx, e, func(ctx context.Context) error {
			return e.client.AddAttachment(ctx, id.Space, id.Name, path)
		})
		if err != nil {
			log.Warn("upload failed, stopping", logging.Attachment(path), logging.Count(i), logging.Err(err))
			return &PartialFailureError{
				Identity: id,
				Uploaded: i,
				Total:    len(paths),
				File:     path,
				Err:      remoteErr(op, id, err),
			}
		}
		log.Debug("uploaded", logging.Attachment(path))
		if progress != nil {
			progress(i+1, len(paths), path)
		}
	}
	log.Info("attached files", logging.Count(len(paths)))
	return nil
}

// ListAttachments returns the attachment names of id. Any failure means the
// page is unpublished or the server unreachable and is reported as
// ErrAttachmentListUnavailable.
func (e *Engine) ListAttachments(ctx context.Context, id model.Identity) ([]string, error) {
	const op = "list attachments"
	names, err := remote(ctx, e, func(ctx context.Context) ([]string, error) {
		return e.client.GetDocumentAttachmentList(ctx, id)
	})
	if err != nil {
		return nil, opErr(op, id, ErrAttachmentListUnavailable, err)
	}
	return names, nil
}

// DownloadAttachment writes attachment name of id to dest. An empty dest
// picks a free file name in the download folder.
func (e *Engine) DownloadAttachment(ctx context.Context, id model.Identity, name, dest string) (FileHandle, error) {
	const op = "download"
	defer logging.Timer(op)()
	if err := id.Validate(); err != nil {
		return FileHandle{}, opErr(op, id, ErrInvalidIdentity, err)
	}
	if err := e.ensureLogin(ctx); err != nil {
		return FileHandle{}, err
	}

	data, err := remote(ctx, e, func(ctx context.Context) ([]byte, error) {
		return e.client.GetAttachmentContent(ctx, id, name)
	})
	if err != nil {
		return FileHandle{}, remoteErr(op, id, err)
	}

	if dest == "" {
		if err := os.MkdirAll(e.opts.DownloadDir, 0o750); err != nil {
			return FileHandle{}, opErr(op, id, ErrTransport, err)
		}
		dest = filepath.Join(e.opts.DownloadDir, GenerateUniqueFileName(name, e.opts.DownloadDir))
	}
	if err := writeFileAtomic(dest, data, 0o644); err != nil {
		return FileHandle{}, opErr(op, id, ErrTransport, fmt.Errorf("write %s: %w", dest, err))
	}
	logging.Info("downloaded attachment", logging.Identity(id.String()), logging.Attachment(name), logging.Path(dest))
	return FileHandle{Path: dest, Name: name, Size: len(data)}, nil
}

// GenerateUniqueFileName returns name if folder has no such file, otherwise
// the first of base1.ext, base2.ext, ... that is free.
func GenerateUniqueFileName(name, folder string) string {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; fileExists(filepath.Join(folder, candidate)); i++ {
		candidate = base + strconv.Itoa(i) + ext
	}
	return candidate
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

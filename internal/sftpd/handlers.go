package sftpd

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
)

// Handlers implements sftp.Handlers over a single session's filesystem
// overlay, capturing every write and emitting an UploadedFile event when
// the handle closes with at least one byte received.
type Handlers struct {
	FS     afero.Fs
	AuthID uuid.UUID
	PP     pipeline.Sink
	Log    zerolog.Logger
}

// AsHandlers returns the sftp.Handlers wiring, one field per request kind,
// matching the pattern FileCrusher's JailedHandlers uses.
func (h Handlers) AsHandlers() sftp.Handlers {
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

// Fileread opens a file within the overlay for reading.
func (h Handlers) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	f, err := h.FS.Open(r.Filepath)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Filewrite opens (or creates) a file within the overlay for writing,
// wrapped in a captureWriter that analyzes and emits on Close.
func (h Handlers) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	pf := r.Pflags()
	flags := os.O_WRONLY
	if pf.Creat {
		flags |= os.O_CREATE
	}
	if pf.Trunc {
		flags |= os.O_TRUNC
	}
	if pf.Excl {
		flags |= os.O_EXCL
	}

	f, err := h.FS.OpenFile(r.Filepath, flags, 0644)
	if err != nil {
		return nil, err
	}

	filepath := r.Filepath
	cw := newCaptureWriter(func(data []byte, truncated bool, totalSize int64) {
		_ = f.Close()
		h.emit(filepath, data, truncated, totalSize)
	})
	return &writeThrough{file: f, capture: cw}, nil
}

// writeThrough fans every WriteAt out to both the overlay file (so
// subsequent reads/stats see real content) and the capture buffer used
// for hashing/entropy/MIME analysis. Close only runs the capture's
// onClose — the overlay file is closed there once analysis is queued.
type writeThrough struct {
	file    afero.File
	capture *captureWriter
}

func (w *writeThrough) WriteAt(p []byte, off int64) (int, error) {
	if _, err := w.file.WriteAt(p, off); err != nil {
		return 0, err
	}
	return w.capture.WriteAt(p, off)
}

func (w *writeThrough) Close() error {
	return w.capture.Close()
}

// emit persists the upload's captured artifact. When truncated is true,
// FileSize reports the guest's real total while Data holds only the
// captureWriter cap — file_size != len(binary_data) in that case by
// design, since the cap bounds what's stored, not what's reported.
func (h Handlers) emit(filepath string, data []byte, truncated bool, totalSize int64) {
	a := analyze(filepath, data)
	ev := pipeline.UploadedFileEvent{
		AuthID:         h.AuthID,
		Timestamp:      time.Now(),
		Filename:       base(filepath),
		Filepath:       filepath,
		FileSize:       totalSize,
		FileHash:       a.hash,
		ClaimedMIME:    a.claimedMIME,
		DetectedMIME:   a.detectedMIME,
		FormatMismatch: a.formatMismatch,
		Entropy:        a.entropy,
		Data:           data,
		Truncated:      truncated,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.PP.SendUploadedFile(ctx, ev); err != nil {
		h.Log.Error().Err(err).Str("filepath", filepath).Msg("failed to persist uploaded file")
	}
}

// Filecmd handles rename/mkdir/remove/setstat mutations within the overlay.
func (h Handlers) Filecmd(r *sftp.Request) error {
	switch r.Method {
	case "Setstat":
		return nil // honeypot: accept silently, nothing to actually chmod/chtime
	case "Rename":
		return h.FS.Rename(r.Filepath, r.Target)
	case "Rmdir", "Remove":
		return h.FS.Remove(r.Filepath)
	case "Mkdir":
		return h.FS.MkdirAll(r.Filepath, 0755)
	case "Symlink", "Link":
		return errors.New("operation not supported")
	default:
		return errors.New("unsupported command")
	}
}

// Filelist lists directories or stats a single file within the overlay.
func (h Handlers) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	switch r.Method {
	case "List":
		entries, err := afero.ReadDir(h.FS, r.Filepath)
		if err != nil {
			return nil, err
		}
		infos := make([]os.FileInfo, 0, len(entries))
		for _, e := range entries {
			infos = append(infos, e)
		}
		return staticLister(infos), nil
	case "Stat", "Readlink":
		fi, err := h.FS.Stat(r.Filepath)
		if err != nil {
			return nil, err
		}
		return staticLister([]os.FileInfo{fi}), nil
	default:
		return nil, errors.New("unsupported list operation")
	}
}

// staticLister wraps a fixed slice of FileInfo for sftp.ListerAt
// pagination, adapted directly from FileCrusher's handlers.go.
type staticLister []os.FileInfo

func (l staticLister) ListAt(dst []os.FileInfo, offset int64) (int, error) {
	if offset < 0 || offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(dst, l[offset:])
	if int64(n)+offset >= int64(len(l)) {
		return n, io.EOF
	}
	return n, nil
}

func base(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

package sftpd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
)

// scpMaxSize bounds how large a single `scp -t` upload this sink will
// accept into memory before giving up, mirroring maxCapturedBytes'
// purpose for the SFTP path.
const scpMaxSize = 256 * 1024 * 1024

// HandleSCPUpload implements the SCP sink protocol (the remote end of
// `scp -t <path>`) on ch, running the same analyze step Filewrite's
// capture uses and emitting the same UploadedFile event. It does not go
// through captureWriter: the whole upload (at most scpMaxSize, larger
// headers are dropped without an event) is read into memory and stored in
// full, so the 64 MiB maxCapturedBytes cap does not apply and Truncated is
// always false. It is adapted from the teacher's handleSCPUpload,
// generalized to write into the session's overlay and to emit a
// pipeline.UploadedFileEvent instead of a local file.
func HandleSCPUpload(ch ssh.Channel, fs afero.Fs, destPath string, authID uuid.UUID, pp pipeline.Sink, log zerolog.Logger) {
	if _, err := ch.Write([]byte{0}); err != nil {
		return
	}

	reader := bufio.NewReader(ch)
	header, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "C") {
		return
	}

	parts := strings.SplitN(header, " ", 3)
	if len(parts) < 3 {
		return
	}
	size, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || size < 0 || size > scpMaxSize {
		return
	}

	filename := sanitizeSCPName(strings.TrimSpace(parts[2]))
	filepath := destPath
	if filepath == "" || strings.HasSuffix(filepath, "/") {
		filepath += filename
	}

	if _, err := ch.Write([]byte{0}); err != nil {
		return
	}

	data := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			log.Warn().Err(err).Msg("scp upload: short read")
			return
		}
	}
	_, _ = reader.ReadByte() // trailing null byte ack

	if err := afero.WriteFile(fs, filepath, data, 0644); err != nil {
		log.Warn().Err(err).Str("filepath", filepath).Msg("scp upload: overlay write failed")
	}

	if len(data) > 0 {
		a := analyze(filepath, data)
		ev := pipeline.UploadedFileEvent{
			AuthID:       authID,
			Timestamp:    time.Now(),
			Filename:     filename,
			Filepath:     filepath,
			FileSize:     int64(len(data)),
			FileHash:     a.hash,
			ClaimedMIME:  a.claimedMIME,
			DetectedMIME: a.detectedMIME,
			FormatMismatch: a.formatMismatch,
			Entropy:      a.entropy,
			Data:         data,
			Truncated:    false,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := pp.SendUploadedFile(ctx, ev); err != nil {
			log.Error().Err(err).Str("filepath", filepath).Msg("failed to persist scp upload")
		}
	}

	_, _ = ch.Write([]byte{0})
	_, _ = ch.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
}

// sanitizeSCPName mirrors the teacher's allowlist filter: strip any
// directory component and keep only characters safe to use as a bare
// filename, falling back to a timestamp-derived name if nothing survives.
func sanitizeSCPName(rawName string) string {
	base := rawName
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	var safe strings.Builder
	for _, c := range base {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '.' || c == '_' || c == '-' {
			safe.WriteRune(c)
		}
	}
	name := strings.TrimLeft(safe.String(), ".")
	if name == "" {
		name = fmt.Sprintf("upload_%d", time.Now().Unix())
	}
	return name
}

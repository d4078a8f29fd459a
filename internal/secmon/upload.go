package secmon

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"panelmerge/internal/audit"
)

// CheckUpload decides whether an uploaded file is safe. The extension
// blocklist rejects server-executable types outright; when content is
// supplied it is additionally scanned for script markers. Invalid bytes are
// decoded best-effort and never rejected on their own, since a decoding
// problem must not fail a legitimate upload.
func (m *Monitor) CheckUpload(ctx context.Context, filename string, content []byte) (allowed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("upload check panicked, failing open", "panic", rec, "filename", filename)
			allowed = true
		}
	}()

	ext := strings.ToLower(filepath.Ext(filename))
	for _, blocked := range blockedUploadExtensions {
		if ext == blocked {
			m.countBlocked("malicious_upload")
			m.auditor.LogSecurityViolation(ctx, "malicious_file_upload", audit.SeverityHigh, map[string]any{
				"filename":  filename,
				"extension": ext,
			})
			m.auditor.LogFileAccess(ctx, filename, "upload", false, "blocked extension "+ext)
			return false
		}
	}

	if len(content) > 0 {
		text := strings.ToLower(decodeLossy(content))
		if sig, found := containsAny(text, scriptContentMarkers); found {
			m.countBlocked("malicious_upload")
			m.auditor.LogSecurityViolation(ctx, "malicious_file_content", audit.SeverityCritical, map[string]any{
				"filename":  filename,
				"signature": sig,
			})
			m.auditor.LogFileAccess(ctx, filename, "upload", false, "script marker "+sig)
			return false
		}
	}

	m.auditor.LogFileAccess(ctx, filename, "upload", true, "")
	return true
}

// decodeLossy interprets content as UTF-8, replacing invalid sequences so
// scanning can proceed over arbitrary bytes.
func decodeLossy(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "�")
}

package secmon

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// inspectForm returns the decoded form fields of a urlencoded body without
// consuming it: the body is read up to a fixed bound and restored so the
// handler still sees it. Multipart bodies are not sniffed here; the upload
// safety check covers file content.
func inspectForm(r *http.Request) url.Values {
	if r.Body == nil {
		return nil
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return nil
	}
	if r.ContentLength > maxInspectedFormBody {
		return nil
	}

	// Chunked requests report ContentLength -1, so the real length is only
	// known after reading. Whatever was read is always stitched back in
	// front of the unread remainder so the handler sees the full body.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedFormBody))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
	if err != nil {
		return nil
	}
	if len(body) == maxInspectedFormBody {
		// The bound was hit; the rest was never read, so a parse here
		// would inspect a partial body.
		return nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		// Malformed bodies are the handler's problem; inspection is
		// best-effort.
		return nil
	}
	return values
}

// readCloser rejoins a replayed prefix with the original body so Close still
// reaches the underlying connection.
type readCloser struct {
	io.Reader
	io.Closer
}

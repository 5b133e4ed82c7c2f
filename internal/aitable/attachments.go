package aitable

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Attachment is a stored file reference as returned by the upload endpoint
// and accepted by Attachment cells.
type Attachment struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
	Height   *int   `json:"height,omitempty"`
	Width    *int   `json:"width,omitempty"`
}

// FetchResourceViaURL downloads the body behind rawURL. No credentials are sent.
func (c *Client) FetchResourceViaURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid attachment url %q: %v", rawURL, err)}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteAPIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Message:    "failed to fetch resource from " + rawURL,
		}
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", rawURL)
	}
	return payload, nil
}

// AttachmentName derives a file name from the last path segment of fileURL,
// falling back to a time-stamped default.
func AttachmentName(fileURL string, now time.Time) string {
	if u, err := url.Parse(fileURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return fmt.Sprintf("attachment-%d", now.UnixMilli())
}

// UploadAttachment copies the file behind fileURL into the datasheet's
// attachment storage and returns the API envelope, whose data is a list of
// Attachment. An empty fileName is derived from the URL.
func (c *Client) UploadAttachment(ctx context.Context, nodeID, fileURL, fileName string) (*Response, error) {
	if nodeID == "" {
		return nil, &ValidationError{Message: "node_id is required"}
	}
	if fileURL == "" {
		return nil, &ValidationError{Message: "attachment_url is required"}
	}
	if fileName == "" {
		fileName = AttachmentName(fileURL, time.Now())
	}

	payload, err := c.FetchResourceViaURL(ctx, fileURL)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(fileName)))
	header.Set("Content-Type", contentType(fileName, payload))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, errors.Wrap(err, "creating multipart part")
	}
	if _, err := part.Write(payload); err != nil {
		return nil, errors.Wrap(err, "writing multipart part")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart body")
	}

	endpoint := "/v1/datasheets/" + url.PathEscape(nodeID) + "/attachments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, &body)
	if err != nil {
		return nil, errors.Wrapf(err, "building POST %s", endpoint)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, endpoint)
}

func contentType(name string, payload []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(payload)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

package runzero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// ImportOptions names the import task created on the console.
type ImportOptions struct {
	Name        string
	Description string
}

func (o ImportOptions) values() url.Values {
	v := url.Values{}
	if o.Name != "" {
		v.Set("name", o.Name)
	}
	if o.Description != "" {
		v.Set("description", o.Description)
	}
	return v
}

// ImportResult is the console reply to an upload.
type ImportResult struct {
	StatusCode int
	Error      string
	Body       record.Record
}

// OK reports a 200 reply with an empty error field.
func (r ImportResult) OK() bool {
	return r.StatusCode == http.StatusOK && r.Error == ""
}

// ImportNessus uploads a .nessus file as a multipart form.
func (c *Client) ImportNessus(ctx context.Context, siteID, path string, opts ImportOptions) (ImportResult, error) {
	if err := validateSite(siteID); err != nil {
		return ImportResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, err
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("application/octet-stream", filepath.Base(path))
	if err != nil {
		return ImportResult{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return ImportResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return ImportResult{}, err
	}

	endpoint := c.endpoint("/org/sites/" + siteID + "/import/nessus")
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, opts.values(), buf)
	if err != nil {
		return ImportResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/octet-stream")
	return c.upload(req, "import_nessus")
}

// ImportPacket streams a packet capture to the console.
func (c *Client) ImportPacket(ctx context.Context, siteID string, r io.Reader, opts ImportOptions) (ImportResult, error) {
	if err := validateSite(siteID); err != nil {
		return ImportResult{}, err
	}
	endpoint := c.endpoint("/org/sites/" + siteID + "/import/packet")
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, opts.values(), r)
	if err != nil {
		return ImportResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/octet-stream")
	return c.upload(req, "import_packet")
}

// ImportScan streams gzip compressed runZero scan data to the console.
func (c *Client) ImportScan(ctx context.Context, siteID string, r io.Reader, opts ImportOptions) (ImportResult, error) {
	if err := validateSite(siteID); err != nil {
		return ImportResult{}, err
	}
	endpoint := c.endpoint("/org/sites/" + siteID + "/import")
	req, err := c.newRequest(ctx, http.MethodPut, endpoint, opts.values(), r)
	if err != nil {
		return ImportResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "gzip")
	return c.upload(req, "import_scan")
}

// upload sends req and decodes the JSON reply. Non-200 replies are not
// errors here; the caller classifies them through ImportResult.OK.
func (c *Client) upload(req *http.Request, name string) (ImportResult, error) {
	resp, err := c.do(req, name)
	if err != nil {
		return ImportResult{}, err
	}
	defer resp.Body.Close()
	result := ImportResult{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, &ConnectionError{Op: req.Method, URL: redact(req.URL), Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(body, &result.Body); err != nil {
		if resp.StatusCode == http.StatusOK {
			return result, &DecodeError{URL: redact(req.URL), Err: err}
		}
		result.Error = string(bytes.TrimSpace(body))
		return result, nil
	}
	result.Error = record.String(result.Body, "error")
	return result, nil
}

func validateSite(siteID string) error {
	if _, err := uuid.Parse(siteID); err != nil {
		return fmt.Errorf("site id %q: %w", siteID, err)
	}
	return nil
}

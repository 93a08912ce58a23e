package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/gopacket/pcapgo"

	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/metrics"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
	"github.com/x1thexxx-lgtm/r0tools/pkg/runzero"
)

// Kind is the type of third-party data being imported.
type Kind string

const (
	Nessus Kind = "nessus"
	Pcap   Kind = "pcap"
	Scan   Kind = "scan"
)

// Upload status values recorded in the upload log.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// ParseKind validates an import kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Nessus, Pcap, Scan:
		return k, nil
	}
	return "", fmt.Errorf("unknown import kind %q (want nessus, pcap or scan)", s)
}

var extensions = map[Kind][]string{
	Nessus: {".nessus"},
	Pcap:   {".pcap", ".pcapng", ".cap"},
	Scan:   {".gz"},
}

// Files lists the files in dir, not recursively, that have the extension
// of kind and whose content matches it. Names are returned sorted.
func Files(dir string, kind Kind) ([]string, error) {
	exts, ok := extensions[kind]
	if !ok {
		return nil, fmt.Errorf("unknown import kind %q", kind)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !hasExt(e.Name(), exts) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if valid(path, kind) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func valid(path string, kind Kind) bool {
	switch kind {
	case Nessus:
		return isMIME(path, "text/xml")
	case Scan:
		return isMIME(path, "application/gzip")
	case Pcap:
		return isCapture(path)
	}
	return false
}

func isMIME(path, want string) bool {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// isCapture accepts classic pcap and pcapng files.
func isCapture(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	if _, err := pcapgo.NewReader(f); err == nil {
		return true
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	_, err = pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	return err == nil
}

// Importer is the subset of the console client used for uploads.
type Importer interface {
	ImportNessus(ctx context.Context, siteID, path string, opts runzero.ImportOptions) (runzero.ImportResult, error)
	ImportPacket(ctx context.Context, siteID string, r io.Reader, opts runzero.ImportOptions) (runzero.ImportResult, error)
	ImportScan(ctx context.Context, siteID string, r io.Reader, opts runzero.ImportOptions) (runzero.ImportResult, error)
}

// LogEntry records the outcome of one file upload.
type LogEntry struct {
	File   string `json:"File Name"`
	Status string `json:"Status"`
}

// Record renders the entry for the output writers.
func (e LogEntry) Record() record.Record {
	return record.Record{"File Name": e.File, "Status": e.Status}
}

// Records renders an upload log.
func Records(entries []LogEntry) []record.Record {
	out := make([]record.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Record())
	}
	return out
}

// Uploader pushes every matching file in a directory to a site, one at a time.
type Uploader struct {
	Client  Importer
	Log     *logging.Logger
	Metrics *metrics.Collector
}

// Run uploads the files of kind found in dir. A failed upload is logged and
// recorded as fail; the remaining files are still attempted. Only a listing
// failure or cancellation stops the run.
func (u *Uploader) Run(ctx context.Context, dir string, kind Kind, siteID string, opts runzero.ImportOptions) ([]LogEntry, error) {
	files, err := Files(dir, kind)
	if err != nil {
		return nil, err
	}
	u.Log.Infof("found %d %s file(s) in %s", len(files), kind, dir)
	entries := make([]LogEntry, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		entries = append(entries, u.Upload(ctx, path, kind, siteID, opts))
	}
	return entries, nil
}

// Upload sends one file and reports the outcome. Failures are logged and
// recorded in the entry, never returned.
func (u *Uploader) Upload(ctx context.Context, path string, kind Kind, siteID string, opts runzero.ImportOptions) LogEntry {
	entry := LogEntry{File: filepath.Base(path), Status: StatusFail}
	res, err := u.upload(ctx, path, kind, siteID, opts)
	switch {
	case err != nil:
		u.Log.Errorf("upload %s: %v", entry.File, err)
	case !res.OK():
		u.Log.Warnf("upload %s rejected: status %d %s", entry.File, res.StatusCode, res.Error)
	default:
		entry.Status = StatusSuccess
		u.Log.Infof("uploaded %s", entry.File)
	}
	u.Metrics.ObserveUpload(entry.Status == StatusSuccess)
	return entry
}

func (u *Uploader) upload(ctx context.Context, path string, kind Kind, siteID string, opts runzero.ImportOptions) (runzero.ImportResult, error) {
	if kind == Nessus {
		return u.Client.ImportNessus(ctx, siteID, path, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return runzero.ImportResult{}, err
	}
	defer f.Close()
	if kind == Pcap {
		return u.Client.ImportPacket(ctx, siteID, f, opts)
	}
	return u.Client.ImportScan(ctx, siteID, f, opts)
}

// CleanUp removes the files of dir that uploaded successfully.
func CleanUp(dir string, entries []LogEntry) []error {
	var errs []error
	for _, e := range entries {
		if e.Status != StatusSuccess {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.File)); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

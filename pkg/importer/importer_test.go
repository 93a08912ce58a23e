package importer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/runzero"
)

const nessusXML = `<?xml version="1.0" ?>
<NessusClientData_v2><Report name="weekly"></Report></NessusClientData_v2>
`

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func capture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	return buf.Bytes()
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"nessus": Nessus, " PCAP ": Pcap, "scan": Scan} {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("qualys")
	assert.Error(t, err)
}

func TestFilesNessus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.nessus", []byte(nessusXML))
	writeFile(t, dir, "a.NESSUS", []byte(nessusXML))
	writeFile(t, dir, "bogus.nessus", []byte("not xml at all"))
	writeFile(t, dir, "notes.txt", []byte(nessusXML))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.nessus"), 0o755))

	got, err := Files(dir, Nessus)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.NESSUS"), filepath.Join(dir, "b.nessus")}, got)
}

func TestFilesPcapAndScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lan.pcap", capture(t))
	writeFile(t, dir, "fake.pcap", []byte("hello"))
	writeFile(t, dir, "scan.json.gz", gzipped(t, `{"type":"result"}`))
	writeFile(t, dir, "plain.gz", []byte(`{"type":"result"}`))

	pcaps, err := Files(dir, Pcap)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "lan.pcap")}, pcaps)

	scans, err := Files(dir, Scan)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "scan.json.gz")}, scans)
}

func TestFilesMissingDir(t *testing.T) {
	_, err := Files(filepath.Join(t.TempDir(), "nope"), Nessus)
	assert.Error(t, err)
}

type fakeImporter struct {
	results map[string]runzero.ImportResult
	errs    map[string]error
	seen    []string
}

func (f *fakeImporter) ImportNessus(_ context.Context, _ string, path string, _ runzero.ImportOptions) (runzero.ImportResult, error) {
	name := filepath.Base(path)
	f.seen = append(f.seen, name)
	return f.results[name], f.errs[name]
}

func (f *fakeImporter) ImportPacket(_ context.Context, _ string, r io.Reader, _ runzero.ImportOptions) (runzero.ImportResult, error) {
	f.seen = append(f.seen, "packet")
	_, _ = io.Copy(io.Discard, r)
	return runzero.ImportResult{StatusCode: 200}, nil
}

func (f *fakeImporter) ImportScan(_ context.Context, _ string, r io.Reader, _ runzero.ImportOptions) (runzero.ImportResult, error) {
	f.seen = append(f.seen, "scan")
	return runzero.ImportResult{StatusCode: 200}, nil
}

func TestUploaderRunAndCleanUp(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.nessus", "b.nessus", "c.nessus"} {
		writeFile(t, dir, name, []byte(nessusXML))
	}
	fake := &fakeImporter{
		results: map[string]runzero.ImportResult{
			"a.nessus": {StatusCode: 200},
			"b.nessus": {StatusCode: 200, Error: "duplicate scan"},
		},
		errs: map[string]error{"c.nessus": errors.New("connection reset")},
	}
	u := &Uploader{Client: fake, Log: logging.Discard()}

	entries, err := u.Run(context.Background(), dir, Nessus, "site", runzero.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []LogEntry{
		{File: "a.nessus", Status: StatusSuccess},
		{File: "b.nessus", Status: StatusFail},
		{File: "c.nessus", Status: StatusFail},
	}, entries)
	assert.Equal(t, []string{"a.nessus", "b.nessus", "c.nessus"}, fake.seen)

	assert.Empty(t, CleanUp(dir, entries))
	_, err = os.Stat(filepath.Join(dir, "a.nessus"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "b.nessus"))
	assert.NoError(t, err)

	rec := Records(entries)[0]
	assert.Equal(t, "a.nessus", rec["File Name"])
	assert.Equal(t, "success", rec["Status"])
}

func TestUploaderPacketKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lan.pcapng", capture(t))
	fake := &fakeImporter{}
	entries, err := (&Uploader{Client: fake}).Run(context.Background(), dir, Pcap, "site", runzero.ImportOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusSuccess, entries[0].Status)
	assert.Equal(t, []string{"packet"}, fake.seen)
}

func TestUploaderCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.nessus", []byte(nessusXML))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entries, err := (&Uploader{Client: &fakeImporter{}}).Run(ctx, dir, Nessus, "site", runzero.ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, entries)
}

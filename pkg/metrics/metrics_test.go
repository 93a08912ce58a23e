package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

func TestWriteTextfile(t *testing.T) {
	c := NewCollector("1.0.0")
	c.ObserveRequest("export_assets", 200)
	c.ObserveRequest("export_assets", 200)
	c.ObserveRequest("tasks", 0)
	c.AddRecords("dupes", 4)
	c.ObserveUpload(true)
	c.ObserveUpload(false)

	path := filepath.Join(t.TempDir(), "r0.prom")
	require.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, `runzero_requests_total{code="200",endpoint="export_assets"} 2`)
	assert.Contains(t, body, `runzero_requests_total{code="0",endpoint="tasks"} 1`)
	assert.Contains(t, body, `runzero_records_total{command="dupes"} 4`)
	assert.Contains(t, body, `runzero_uploads_total{status="fail"} 1`)
	assert.Contains(t, body, `runzero_tool_info{version="1.0.0"} 1`)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveRequest("x", 200)
	c.AddRecords("x", 1)
	c.ObserveUpload(true)
	assert.NoError(t, c.WriteTextfile("/nonexistent/dir/file.prom"))
}

func TestPoints(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	recs := []record.Record{
		{"taskID": "t1", "siteID": "s1", "newAssets": 3.0},
		{"note": "text only"},
		{"tasksAnalyzed": 2.0, "totalNew": 5.0},
	}
	points := Points("tally", map[string]string{"console": "c1"}, []string{"siteID"}, recs, ts)
	require.Len(t, points, 2)

	first := points[0]
	assert.Equal(t, "tally", first.Name())
	tags := map[string]string{}
	for _, tag := range first.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"console": "c1", "siteID": "s1"}, tags)
	require.Len(t, first.FieldList(), 1)
	assert.Equal(t, "newAssets", first.FieldList()[0].Key)
}

func TestPublishRecords(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/write", r.URL.Path)
		assert.Equal(t, "runzero", r.URL.Query().Get("bucket"))
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewPublisher(config.InfluxConfig{URL: srv.URL, Token: "tok", Org: "org", Bucket: "runzero"})
	require.NoError(t, err)
	defer p.Close()
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	n, err := p.PublishRecords(context.Background(), "kpi", nil, nil, []record.Record{{"weighted_total": 12.5}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, strings.HasPrefix(body, "kpi weighted_total=12.5"), body)
}

func TestNewPublisherRequiresConfig(t *testing.T) {
	_, err := NewPublisher(config.InfluxConfig{URL: "http://x"})
	assert.Error(t, err)
}

package runzero

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
)

const testSite = "6f0c2d5e-2b7a-4c43-9d0e-6b8a3c1f4e21"

func TestSanitizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                                "",
		" https://console.runzero.com ":   "https://console.runzero.com",
		"https://console.runzero.com/":    "https://console.runzero.com",
		"https://runzero.internal:8443//": "https://runzero.internal:8443",
	}
	for raw, want := range cases {
		if got := sanitizeBaseURL(raw); got != want {
			t.Fatalf("sanitizeBaseURL(%q)=%q want %q", raw, got, want)
		}
	}
}

func TestExportAssetsSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/export/org/assets.json", r.URL.Path)
		assert.Equal(t, "Bearer XT-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "alive:t", r.URL.Query().Get("search"))
		assert.Equal(t, "id, names", r.URL.Query().Get("fields"))
		_, _ = io.WriteString(w, `[{"id":"a1","names":["h1"]},{"id":"a2","names":[]}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "XT-secret")
	got, err := c.ExportAssets(context.Background(), query.New("alive:t", "id", "names"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0]["id"])
}

func TestExportAcceptsJSONLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{\"id\":\"v1\"}\n{\"id\":\"v2\"}\n")
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, "t").ExportVulnerabilities(context.Background(), query.New("risk:critical"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad").Orgs(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "invalid token")
	assert.NotContains(t, se.URL, "?")
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").SearchAssets(context.Background(), "alive:t")
	var de *DecodeError
	assert.True(t, errors.As(err, &de), "got %v", err)
}

func TestConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(base, "t").Tasks(context.Background(), TaskFilter{Status: "processed"})
	var ce *ConnectionError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestMissingBaseURL(t *testing.T) {
	_, err := NewClient("  ", "t").Orgs(context.Background())
	assert.Error(t, err)
}

func TestAuthenticateCachesToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1.0/account/api/token":
			calls++
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "cid", r.PostForm.Get("client_id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"oauth-tok","token_type":"Bearer","expires_in":3600}`)
		case "/api/v1.0/account/orgs":
			assert.Equal(t, "Bearer oauth-tok", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `[{"id":"o1","name":"Lab"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ctx := context.Background()
	require.NoError(t, c.Authenticate(ctx, "cid", "secret"))
	require.NoError(t, c.Authenticate(ctx, "cid", "secret"))
	assert.Equal(t, 1, calls)

	orgs, err := c.Orgs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lab", orgs[0]["name"])
}

func TestAuthenticateRequiresCredentials(t *testing.T) {
	c := NewClient("https://console.runzero.com", "")
	assert.Error(t, c.Authenticate(context.Background(), "", ""))
}

func TestTaskFilterValues(t *testing.T) {
	v := TaskFilter{Search: "type:scan"}.values()
	assert.Equal(t, "type:scan", v.Get("search"))
	_, ok := v["status"]
	assert.False(t, ok)
}

func TestDownloadTaskData(t *testing.T) {
	const taskID = "0b7e0a4c-3f3e-4d7b-8d55-9b1a2c3d4e5f"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/org/tasks/"+taskID+"/data", r.URL.Path)
		_, _ = w.Write([]byte{0x1f, 0x8b, 0x08, 0x00})
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := NewClient(srv.URL, "t").DownloadTaskData(context.Background(), taskID, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, byte(0x1f), buf.Bytes()[0])

	_, err = NewClient(srv.URL, "t").DownloadTaskData(context.Background(), "not-a-uuid", &buf)
	assert.Error(t, err)
}

func TestTask(t *testing.T) {
	const taskID = "0b7e0a4c-3f3e-4d7b-8d55-9b1a2c3d4e5f"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1.0/org/tasks/"+taskID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"id":"`+taskID+`","type":"scan","params":{"targets":"10.0.0.0/24"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	task, err := c.Task(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "scan", task["type"])
	assert.Equal(t, "10.0.0.0/24", task["params"].(map[string]interface{})["targets"])

	_, err = c.Task(context.Background(), "a3c1e0f2-5b6d-4e7f-8a9b-0c1d2e3f4a5b")
	var se *StatusError
	assert.True(t, errors.As(err, &se), "got %v", err)

	_, err = c.Task(context.Background(), "NA")
	assert.Error(t, err)
}

func TestSetOwner(t *testing.T) {
	const asset = "a3c1e0f2-5b6d-4e7f-8a9b-0c1d2e3f4a5b"
	const ownerType = "b4d2f1a3-6c7e-4f80-9bac-1d2e3f4a5b6c"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1.0/org/assets/"+asset+"/owners", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"ownerships":[{"ownership_type_id":"`+ownerType+`","owner":"jdoe"}]}`, string(body))
		_, _ = io.WriteString(w, `{"id":"`+asset+`"}`)
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, "t").SetOwner(context.Background(), asset, ownerType, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, asset, out["id"])
}

func TestImportNessusMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1.0/org/sites/"+testSite+"/import/nessus", r.URL.Path)
		assert.Equal(t, "weekly", r.URL.Query().Get("name"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("application/octet-stream")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		assert.Equal(t, "scan.nessus", hdr.Filename)
		_, _ = io.WriteString(w, `{"id":"task-1","error":""}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "scan.nessus")
	require.NoError(t, os.WriteFile(path, []byte(`<?xml version="1.0"?><NessusClientData_v2/>`), 0o600))

	res, err := NewClient(srv.URL, "t").ImportNessus(context.Background(), testSite, path, ImportOptions{Name: "weekly"})
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestImportScanHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "/api/v1.0/org/sites/"+testSite+"/import", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad archive"}`)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "t").ImportScan(context.Background(), testSite, strings.NewReader("x"), ImportOptions{})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "bad archive", res.Error)
}

func TestImportPacketPlainTextFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "t").ImportPacket(context.Background(), testSite, strings.NewReader("pcap"), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "forbidden", res.Error)
}

func TestImportRejectsBadSite(t *testing.T) {
	_, err := NewClient("https://console.runzero.com", "t").ImportPacket(context.Background(), "site", strings.NewReader(""), ImportOptions{})
	assert.Error(t, err)
}

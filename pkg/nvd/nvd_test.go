package nvd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

const cveDoc = `{"vulnerabilities":[{"cve":{"id":"CVE-2021-44228",
"descriptions":[{"lang":"en","value":"Log4Shell"}],
"cisaVulnerabilityName":"Apache Log4j2 RCE",
"metrics":{"cvssMetricV31":[{"exploitabilityScore":3.9,"cvssData":{"baseScore":10.0,"baseSeverity":"CRITICAL"}}],
"cvssMetricV2":[{"exploitabilityScore":8.6,"cvssData":{"baseScore":9.3}}]}}}]}`

func testConfig(url string) config.NVDConfig {
	return config.NVDConfig{URL: url, Retries: 3, DelayMS: 1, RateLimit: 100, WindowSeconds: 1}
}

func TestLookupRetriesForbidden(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CVE-2021-44228", r.URL.Query().Get("cveId"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, cveDoc)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	doc, err := c.Lookup(context.Background(), "cve-2021-44228")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Contains(t, doc, "vulnerabilities")
}

func TestLookupGivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	doc, err := c.Lookup(context.Background(), "CVE-1")
	require.NoError(t, err)
	assert.Empty(t, doc)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestLookupOtherStatusNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	doc, err := c.Lookup(context.Background(), "CVE-1")
	require.NoError(t, err)
	assert.Empty(t, doc)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestLookupTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(testConfig(base))
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), "CVE-1")
	assert.Error(t, err)
}

func TestRateWindowNeverExceedsLimit(t *testing.T) {
	const limit = 4
	var mu sync.Mutex
	var seen []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, time.Now())
		mu.Unlock()
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RateLimit = limit
	cfg.WindowSeconds = 1
	c, err := NewClient(cfg)
	require.NoError(t, err)

	for i := 0; i < 2*limit; i++ {
		_, err := c.Lookup(context.Background(), "CVE-1")
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2*limit)
	// Allow for scheduling jitter between the client and the server clock.
	window := time.Second - 50*time.Millisecond
	for i := range seen {
		inWindow := 1
		for j := i + 1; j < len(seen); j++ {
			if seen[j].Sub(seen[i]) < window {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, limit, "requests in the window starting at request %d", i)
	}
}

func TestRateUnlimited(t *testing.T) {
	l := newLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(config.NVDConfig{})
	assert.Error(t, err)
}

func TestTargets(t *testing.T) {
	assets := []record.Record{{
		"id": "a1",
		"foreign_attributes": map[string]interface{}{
			"@shodan.dev": []interface{}{map[string]interface{}{
				"host.ipStr": "203.0.113.7",
				"host.ports": "22\t443",
				"host.vulns": "CVE-2021-44228\tCVE-2019-0708",
			}},
		},
	}}
	got := Targets(assets)
	require.Len(t, got, 1)
	assert.Equal(t, Target{
		ID:      "a1",
		Address: "203.0.113.7",
		Ports:   []string{"22", "443"},
		CVEs:    []string{"CVE-2021-44228", "CVE-2019-0708"},
	}, got[0])
}

func TestEnrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, cveDoc)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	out, err := c.Enrich(context.Background(), []Target{{ID: "a1", Address: "203.0.113.7", CVEs: []string{"CVE-2021-44228"}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	details := out[0]["cve_details"].([]interface{})
	require.Len(t, details, 1)
}

func TestSummarize(t *testing.T) {
	docs, err := record.Decode(strings.NewReader("[" + cveDoc + "]"))
	require.NoError(t, err)
	s := Summarize(docs[0])
	assert.Equal(t, "CVE-2021-44228", s["cve"])
	assert.Equal(t, "Apache Log4j2 RCE", s["name"])
	assert.Equal(t, 4, s["severity_rank"])
	assert.Equal(t, false, s["exploitable"])
	assert.Equal(t, 10.0, s["cvss3_base_score"])
	assert.Equal(t, 9.3, s["cvss2_base_score"])
	assert.Equal(t, "Log4Shell", s["description"])

	assert.Empty(t, Summarize(record.Record{}))
}

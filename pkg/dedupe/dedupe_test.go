package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

func asset(id string, macs, addrs, names []interface{}) record.Record {
	return record.Record{
		"id":        id,
		"macs":      macs,
		"addresses": addrs,
		"names":     names,
		"os":        "Linux",
		"hw":        "Dell",
		"site_id":   "S1",
	}
}

func list(v ...interface{}) []interface{} { return v }

func TestExactByIDKeepsFirst(t *testing.T) {
	in := []record.Record{
		{"id": "A", "x": 1},
		{"id": "B", "x": 2},
		{"id": "A", "x": 3},
	}
	out := ExactByID(in)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0]["x"])
	assert.Equal(t, "B", out[1]["id"])
}

func TestExactByIDKeepsRecordsWithoutID(t *testing.T) {
	out := ExactByID([]record.Record{{"x": 1}, {"x": 1}})
	assert.Len(t, out, 2)
}

func TestCorrelateSharedMAC(t *testing.T) {
	in := []record.Record{
		asset("1", list("AA:BB"), list("10.0.0.1"), list("host1")),
		asset("2", list("AA:BB"), list("10.0.0.2"), list("host2")),
	}
	out := Correlate(in)
	require.Len(t, out, 2)

	partners := map[string]string{}
	for _, r := range out {
		dupe := r["possible_dupe"].(map[string]interface{})
		fields := r["shared_fields"].(map[string]interface{})
		partners[r["id"].(string)] = dupe["id"].(string)
		assert.Equal(t, true, fields["MAC"])
		assert.Equal(t, []string{"aa:bb"}, fields["matched_MACs"])
		assert.Equal(t, false, fields["IP address"])
		assert.Equal(t, false, fields["Hostname"])
		assert.Equal(t, "S1", fields["site"])
	}
	assert.Equal(t, map[string]string{"1": "2", "2": "1"}, partners)

	_, touched := in[0]["possible_dupe"]
	assert.False(t, touched, "input records must not be modified")
}

func TestCorrelateOncePerPartner(t *testing.T) {
	in := []record.Record{
		asset("1", list("AA"), list(), list()),
		asset("2", list("AA"), list(), list()),
		asset("3", list("AA"), list(), list()),
	}
	out := Correlate(in)
	assert.Len(t, out, 6)
	for _, r := range out {
		dupe := r["possible_dupe"].(map[string]interface{})
		assert.NotEqual(t, r["id"], dupe["id"])
	}
}

func TestCorrelateEmptyListsNeverMatch(t *testing.T) {
	in := []record.Record{
		asset("1", list(), list(), list()),
		asset("2", list(), list(), list()),
		{"id": "3"},
	}
	out := Correlate(in)
	require.Len(t, out, 1)
	assert.Equal(t, NoMatches, out[0]["Msg"])
}

func TestCorrelateIgnoresRepeatedIDs(t *testing.T) {
	in := []record.Record{
		asset("1", list("AA"), list(), list()),
		asset("1", list("AA"), list(), list()),
	}
	out := Correlate(in)
	assert.Equal(t, NoMatches, out[0]["Msg"])
}

func TestPairsSymmetric(t *testing.T) {
	in := []record.Record{
		asset("b", list("M1"), list("10.0.0.9"), list()),
		asset("a", list("M1", "M2"), list(), list("web")),
		asset("c", list("M2"), list(), list("web")),
	}
	pairs := Pairs(in)
	require.Len(t, pairs, 2)
	assert.Equal(t, Match{A: "a", B: "b", MACs: []string{"m1"}, Addresses: []string{}, Names: []string{}}, pairs[0])
	assert.Equal(t, "a", pairs[1].A)
	assert.Equal(t, "c", pairs[1].B)
	assert.Equal(t, []string{"web"}, pairs[1].Names)

	// Every directed correlation corresponds to exactly one pair.
	assert.Len(t, Correlate(in), 2*len(pairs))
}

func TestRecordsSentinel(t *testing.T) {
	out := Records(nil)
	require.Len(t, out, 1)
	assert.Equal(t, NoMatches, out[0]["Msg"])
}

func TestCorrelateSkipsRecordsWithoutID(t *testing.T) {
	in := []record.Record{
		asset("1", list("AA"), list(), list()),
		{"macs": list("AA")},
	}
	assert.Equal(t, NoMatches, Correlate(in)[0]["Msg"])
	assert.Empty(t, Pairs(in))
}

func TestCorrelateMACNotation(t *testing.T) {
	in := []record.Record{
		asset("1", list("00-11-22-33-44-55"), list(), list()),
		asset("2", list("00:11:22:33:44:55"), list(), list()),
		asset("3", list("0011.2233.4455"), list(), list()),
	}
	pairs := Pairs(in)
	require.Len(t, pairs, 1)
	assert.Equal(t, "1", pairs[0].A)
	assert.Equal(t, "2", pairs[0].B)
	assert.Equal(t, []string{"00:11:22:33:44:55"}, pairs[0].MACs)
}

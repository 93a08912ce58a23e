package query

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Query is a search expression plus the fields to return. Both are passed to
// the console verbatim; the vendor grammar is not checked here.
type Query struct {
	Search string
	Fields []string
}

// New builds a query.
func New(search string, fields ...string) Query {
	return Query{Search: search, Fields: fields}
}

// FieldList returns the fields as the comma separated list the API expects.
func (q Query) FieldList() string {
	return strings.Join(q.Fields, ", ")
}

// Values encodes the query as URL parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("search", q.Search)
	v.Set("fields", q.FieldList())
	return v
}

// MissingArgumentError reports an empty required builder input.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required argument %s", e.Name)
}

// Require fails when value is blank.
func Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &MissingArgumentError{Name: name}
	}
	return nil
}

// FirstSeenWithin matches assets first seen inside the time range, e.g. "2weeks".
func FirstSeenWithin(timeRange string) (string, error) {
	if err := Require("time range", timeRange); err != nil {
		return "", err
	}
	return "first_seen:<" + strings.TrimSpace(timeRange), nil
}

// NewAssets lists assets first seen within timeRange.
func NewAssets(timeRange string) (Query, error) {
	search, err := FirstSeenWithin(timeRange)
	if err != nil {
		return Query{}, err
	}
	return New(search, "id", "os", "os_vendor", "hw", "addresses", "macs", "attributes"), nil
}

// Duplicates selects the identity fields needed for correlation.
func Duplicates(timeRange string) (Query, error) {
	search, err := FirstSeenWithin(timeRange)
	if err != nil {
		return Query{}, err
	}
	return New(search, "id", "os", "hw", "addresses", "macs", "names", "alive", "site_id"), nil
}

// SerialNumbers finds assets reporting a serial number from any protocol.
func SerialNumbers() Query {
	return New("protocol:snmp or has:snmp.serialNumbers or hw.serialNumber:'%' or ilo.serialNumber:'%'",
		"id", "hw", "macs", "addresses", "attributes")
}

// HardwareProfile excludes virtual and cloud assets.
func HardwareProfile() Query {
	return New("not attribute:virtual and not (source:vmware or source:aws or source:gcp or source:azure)",
		"os", "os_vendor", "hw", "addresses", "attributes", "foreign_attributes")
}

// IntegrationSource returns every asset reported by an integration.
func IntegrationSource(source string) (Query, error) {
	if err := Require("source", source); err != nil {
		return Query{}, err
	}
	return New("source:"+strings.TrimSpace(source), "foreign_attributes"), nil
}

// LastUsers returns assets from sources that report logged in users.
func LastUsers() Query {
	return New("source:sentinelone or source:crowdstrike or source:googleworkspace", "id", "foreign_attributes")
}

// ShodanCVEs returns assets with Shodan reported vulnerabilities.
func ShodanCVEs() Query {
	return New(`source:shodan and not @shodan.dev.host.vulns:=""`, "id", "foreign_attributes")
}

// TaskType builds a task search for a task type such as "scan".
func TaskType(kind string) (string, error) {
	if err := Require("task type", kind); err != nil {
		return "", err
	}
	return "type:" + strings.TrimSpace(kind), nil
}

// AddressAssets finds the runZero scanned asset holding address.
func AddressAssets(address string) (Query, error) {
	if err := Require("address", address); err != nil {
		return Query{}, err
	}
	return New("source:runzero and address:"+strings.TrimSpace(address),
		"id", "addresses", "names", "os", "hw",
		"first_task_id", "last_task_id", "first_agent_id", "last_agent_id"), nil
}

var privateScopes = []struct {
	prefix netip.Prefix
	search string
}{
	{netip.MustParsePrefix("192.168.0.0/16"), "params:192.168.%.%"},
	{netip.MustParsePrefix("172.16.0.0/12"), "params:172.16.%.% or params:172.17.%.% or params:172.18.%.% or params:172.19.%.% or params:172.2%.%.% or params:172.30.%.% or params:172.31.%.%"},
	{netip.MustParsePrefix("10.0.0.0/8"), "params:10.%.%.%"},
}

// TaskScope builds a task search matching tasks whose parameters cover the
// private range address belongs to. Public addresses yield "".
func TaskScope(address string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("address %q: %w", address, err)
	}
	addr = addr.Unmap()
	for _, s := range privateScopes {
		if s.prefix.Contains(addr) {
			return s.search, nil
		}
	}
	return "", nil
}

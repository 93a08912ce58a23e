package fingerprint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// Common SNMP OIDs for device identification
const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"

	// ENTITY-MIB columns
	oidEntPhysicalSerialNum = ".1.3.6.1.2.1.47.1.1.1.1.11"
	oidEntPhysicalModelName = ".1.3.6.1.2.1.47.1.1.1.1.13"
)

// Keys written by Annotate.
const (
	KeySerials  = "snmp.probe.serialNumbers"
	KeyModels   = "snmp.probe.modelNames"
	KeyVendor   = "snmp.probe.vendor"
	KeyClass    = "snmp.probe.class"
	KeySysDescr = "snmp.probe.sysDescr"
	KeyError    = "snmp.probe.error"
)

// serialKeys are the projected serial number fields; an asset with any of
// them set is not probed.
var serialKeys = []string{"hw.serialNumber", "snmp.serialNumbers", "ilo.serialNumber"}

// Engine queries devices over SNMP v2c for identity and serial numbers.
type Engine struct {
	community string
	port      uint16
	timeout   time.Duration
	retries   int
	log       *logging.Logger
}

// EngineOption configures the fingerprint engine
type EngineOption func(*Engine)

// WithCommunity sets the v2c community string.
func WithCommunity(community string) EngineOption {
	return func(e *Engine) {
		if community != "" {
			e.community = community
		}
	}
}

// WithPort sets the agent UDP port.
func WithPort(port int) EngineOption {
	return func(e *Engine) {
		if port > 0 && port < 65536 {
			e.port = uint16(port)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates new fingerprint engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		community: "public",
		port:      161,
		timeout:   2 * time.Second,
		retries:   1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is what one device reported.
type Result struct {
	Target      string
	SysDescr    string
	SysName     string
	SysObjectID string
	Serials     []string
	Models      []string
}

// Vendor guesses the manufacturer from sysDescr, then from the enterprise OID.
func (r Result) Vendor() string {
	if v := vendorFromDescr(r.SysDescr); v != "" {
		return v
	}
	return vendorFromOID(r.SysObjectID)
}

// Class guesses the device class from sysDescr keywords.
func (r Result) Class() string {
	d := strings.ToLower(r.SysDescr)
	switch {
	case strings.Contains(d, "copier"), strings.Contains(d, "multifunction"), strings.Contains(d, "mfp"):
		return "Peripheral"
	case strings.Contains(d, "printer"):
		return "Printer"
	case strings.Contains(d, "switch"):
		return "NetworkEquipment"
	case strings.Contains(d, "router"):
		return "Router"
	case strings.Contains(d, "windows"), strings.Contains(d, "linux"), strings.Contains(d, "hardware:"):
		return "Computer"
	}
	return ""
}

// Probe reads the system group and the ENTITY-MIB serial and model columns
// from target.
func (e *Engine) Probe(ctx context.Context, target string) (Result, error) {
	res := Result{Target: target}
	snmp := &gosnmp.GoSNMP{
		Target:    target,
		Port:      e.port,
		Community: e.community,
		Version:   gosnmp.Version2c,
		Timeout:   e.timeout,
		Retries:   e.retries,
		Context:   ctx,
	}
	if err := snmp.Connect(); err != nil {
		return res, fmt.Errorf("snmp connect %s: %w", target, err)
	}
	defer snmp.Conn.Close()

	pkt, err := snmp.Get([]string{oidSysDescr, oidSysName, oidSysObjectID})
	if err != nil {
		return res, fmt.Errorf("snmp get %s: %w", target, err)
	}
	for _, v := range pkt.Variables {
		switch v.Name {
		case oidSysDescr:
			res.SysDescr = pduString(v)
		case oidSysName:
			res.SysName = pduString(v)
		case oidSysObjectID:
			res.SysObjectID = pduString(v)
		}
	}
	e.log.Debugf("snmp %s: sysDescr=%q", target, res.SysDescr)

	res.Serials = e.walkStrings(snmp, oidEntPhysicalSerialNum)
	res.Models = e.walkStrings(snmp, oidEntPhysicalModelName)
	return res, nil
}

// walkStrings collects the non-empty string values under a column. Agents
// without ENTITY-MIB simply yield nothing.
func (e *Engine) walkStrings(snmp *gosnmp.GoSNMP, oid string) []string {
	pdus, err := snmp.BulkWalkAll(oid)
	if err != nil {
		e.log.Debugf("snmp walk %s on %s: %v", oid, snmp.Target, err)
		return nil
	}
	return pduStrings(pdus)
}

func pduStrings(pdus []gosnmp.SnmpPDU) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, pdu := range pdus {
		s := strings.TrimSpace(pduString(pdu))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	case nil:
		return ""
	}
	return fmt.Sprint(pdu.Value)
}

// Annotate probes the first address of an asset that has no serial number
// from any source and records what the device reports.
func (e *Engine) Annotate(ctx context.Context, r record.Record) record.Record {
	out := r.Clone()
	if hasSerial(r) {
		return out
	}
	addrs := record.Strings(r, "addresses")
	if len(addrs) == 0 {
		return out
	}
	res, err := e.Probe(ctx, addrs[0])
	if err != nil {
		e.log.Debugf("%v", err)
		out[KeyError] = err.Error()
		return out
	}
	res.annotate(out)
	return out
}

func (r Result) annotate(out record.Record) {
	out[KeySerials] = r.Serials
	out[KeyModels] = r.Models
	out[KeyVendor] = r.Vendor()
	out[KeyClass] = r.Class()
	out[KeySysDescr] = r.SysDescr
}

// AnnotateAll runs Annotate over records one at a time, in order. Once ctx is
// done the remaining records are copied unchanged.
func (e *Engine) AnnotateAll(ctx context.Context, records []record.Record) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if ctx.Err() != nil {
			out = append(out, r.Clone())
			continue
		}
		out = append(out, e.Annotate(ctx, r))
	}
	return out
}

func hasSerial(r record.Record) bool {
	for _, k := range serialKeys {
		switch v := r[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return true
			}
		case []string:
			if len(v) > 0 {
				return true
			}
		}
	}
	return false
}

// vendorFromDescr attempts to identify vendor from system description
func vendorFromDescr(sysDescr string) string {
	lower := strings.ToLower(sysDescr)
	for _, kv := range descrVendors {
		if strings.Contains(lower, kv[0]) {
			return kv[1]
		}
	}
	return ""
}

// Checked in order, first match wins.
var descrVendors = [][2]string{
	{"cisco", "Cisco"},
	{"juniper", "Juniper"},
	{"aruba", "Aruba"},
	{"fortinet", "Fortinet"},
	{"palo alto", "Palo Alto Networks"},
	{"mikrotik", "MikroTik"},
	{"ubiquiti", "Ubiquiti"},
	{"dell", "Dell"},
	{"lenovo", "Lenovo"},
	{"xerox", "Xerox"},
	{"canon", "Canon"},
	{"ricoh", "Ricoh"},
	{"epson", "Epson"},
	{"brother", "Brother"},
	{"kyocera", "Kyocera"},
	{"sharp", "Sharp"},
	{"konica", "Konica Minolta"},
	{"microsoft", "Microsoft"},
	{"vmware", "VMware"},
	{"procurve", "HP"},
	{"hewlett", "HP"},
	{"hp ", "HP"},
}

// Enterprise OIDs follow pattern .1.3.6.1.4.1.<enterprise-number>
var enterpriseVendors = map[string]string{
	"9":     "Cisco",
	"11":    "HP",
	"674":   "Dell",
	"2636":  "Juniper",
	"12356": "Fortinet",
	"14988": "MikroTik",
	"2699":  "Xerox",
	"1602":  "Canon",
	"367":   "Ricoh",
	"1248":  "Epson",
	"2435":  "Brother",
	"1347":  "Kyocera",
}

// vendorFromOID extracts vendor from enterprise OID
func vendorFromOID(oid string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(oid, "."), "1.3.6.1.4.1.")
	if rest == strings.TrimPrefix(oid, ".") {
		return ""
	}
	number := strings.SplitN(rest, ".", 2)[0]
	return enterpriseVendors[number]
}

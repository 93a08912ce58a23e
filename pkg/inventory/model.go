package inventory

// Extraction copies one flattened attribute to an alias. Split turns a tab
// separated multi value into a list. Missing paths yield Default.
type Extraction struct {
	Alias   string
	Path    string
	Split   bool
	Default interface{}
}

// SerialNumbers pulls serial numbers reported by hardware probes, SNMP and iLO.
var SerialNumbers = []Extraction{
	{Alias: "hw.serialNumber", Path: "attributes_hw.serialNumber", Default: ""},
	{Alias: "snmp.serialNumbers", Path: "attributes_snmp.serialNumbers", Split: true, Default: ""},
	{Alias: "ilo.serialNumber", Path: "attributes_ilo.serialNumber", Split: true, Default: ""},
}

// HardwareProfile collects model and serial data from scans and EDR/MDM integrations.
var HardwareProfile = []Extraction{
	{Alias: "hw.product", Path: "attributes_hw.product", Default: ""},
	{Alias: "hw.device", Path: "attributes_hw.device", Default: ""},
	{Alias: "hw.vendor", Path: "attributes_hw.vendor", Default: ""},
	{Alias: "snmp.sysDesc", Path: "attributes_snmp.sysDesc", Default: ""},
	{Alias: "hw.serialNumber", Path: "attributes_hw.serialNumber", Default: ""},
	{Alias: "snmp.serialNumbers", Path: "attributes_snmp.serialNumbers", Split: true, Default: ""},
	{Alias: "ilo.serialNumber", Path: "attributes_ilo.serialNumber", Split: true, Default: ""},
	{Alias: "cpuID", Path: "foreign_attributes_@sentinelone.dev_0_cpuID", Default: ""},
	{Alias: "modelName", Path: "foreign_attributes_@sentinelone.dev_0_modelName", Default: ""},
	{Alias: "device.model", Path: "foreign_attributes_@miradore.dev_0_device.model", Default: ""},
	{Alias: "device.serialnumber", Path: "foreign_attributes_@miradore.dev_0_device.serialNumber", Default: ""},
	{Alias: "systemProductName", Path: "foreign_attributes_@crowdstrike.dev_0_systemProductName", Default: ""},
}

// LastUsers maps each integration's last logged in user to a short alias.
var LastUsers = []Extraction{
	{Alias: "s1_user", Path: "foreign_attributes_@sentinelone.dev_0_lastLoggedInUserName"},
	{Alias: "mir_user", Path: "foreign_attributes_@miradore.dev_0_user.name"},
	{Alias: "goog_user", Path: "foreign_attributes_@googleworkspace.chromeos_0_recentUsers"},
	{Alias: "cs_user", Path: "foreign_attributes_@crowdstrike.dev_0_lastLoginUser"},
}

// IgnoredUsers are account names that never identify an owner.
var IgnoredUsers = []string{
	"None",
	"sshd",
	"ssm-user",
	`nt authority\anonymous logon`,
	"default group",
	"developer",
}

// Shodan extracts exposure data reported by the Shodan integration.
var Shodan = []Extraction{
	{Alias: "address", Path: "foreign_attributes_@shodan.dev_0_host.ipStr", Default: ""},
	{Alias: "ports", Path: "foreign_attributes_@shodan.dev_0_host.ports", Split: true},
	{Alias: "cves", Path: "foreign_attributes_@shodan.dev_0_host.vulns", Split: true},
}

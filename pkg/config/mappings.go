package config

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

// DefaultDataBridge receives a bare data-port value that names no bridge.
const DefaultDataBridge = "br-data"

var macRegexp = regexp.MustCompile(`^(?i)[0-9a-f]{2}([:-][0-9a-f]{2}){5}$`)

// IsMACAddress reports whether token is six colon or hyphen delimited hex
// pairs, in any case.
func IsMACAddress(token string) bool {
	return macRegexp.MatchString(token)
}

// NormalizeMAC returns the lower-case colon form of a MAC address token.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
}

// Pair is one key/value token of a mapping option, kept in input order.
type Pair struct {
	Key   string
	Value string
}

// Partition splits a token on its first ':' the way the option grammar
// expects. found is false when the token has no separator.
func Partition(token string) (head, tail string, found bool) {
	return strings.Cut(token, ":")
}

// ParseTokenPairs splits s on whitespace and every token on its first ':'.
// Every token must carry a separator; key names the option for the error.
func ParseTokenPairs(key, s string) ([]Pair, error) {
	var pairs []Pair
	for _, token := range strings.Fields(s) {
		head, tail, found := Partition(token)
		if !found {
			return nil, common.NewMalformedConfig(key, "token %q has no ':' separator", token)
		}
		pairs = append(pairs, Pair{Key: head, Value: tail})
	}
	return pairs, nil
}

// ParseMappings is the lenient mapping grammar. With keyRValue the part after
// the separator becomes the key (data-port style "bridge:port" keyed by port)
// and tokens without a separator are skipped. Without it, a token lacking a
// separator maps to an empty value. A repeated key keeps its first position
// and takes the last value.
func ParseMappings(s string, keyRValue bool) []Pair {
	var pairs []Pair
	index := map[string]int{}
	for _, token := range strings.Fields(s) {
		head, tail, found := Partition(token)
		key, value := head, tail
		if keyRValue {
			if !found {
				continue
			}
			key, value = tail, head
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if i, ok := index[key]; ok {
			pairs[i].Value = value
			continue
		}
		index[key] = len(pairs)
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs
}

// ParseDataPortMappings parses data-port into port (or MAC) -> bridge pairs.
// A single value without a bridge is accepted for backwards compatibility and
// is attached to DefaultDataBridge.
func ParseDataPortMappings(s string) ([]Pair, error) {
	return parsePortMappings("data-port", s, DefaultDataBridge)
}

// ParseBondMappings parses dpdk-bond-mappings ("bond:mac") into mac -> bond
// pairs.
func ParseBondMappings(s string) ([]Pair, error) {
	return parsePortMappings("dpdk-bond-mappings", s, "")
}

func parsePortMappings(key, s, defaultBridge string) ([]Pair, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}

	var pairs []Pair
	index := map[string]int{}
	for _, token := range fields {
		var port, bridge string
		if IsMACAddress(token) {
			port, bridge = token, defaultBridge
		} else {
			head, tail, found := Partition(token)
			if !found {
				continue
			}
			port, bridge = strings.TrimSpace(tail), strings.TrimSpace(head)
		}
		if port == "" || bridge == "" {
			continue
		}
		if i, ok := index[port]; ok {
			if pairs[i].Value != bridge {
				return nil, common.NewMalformedConfig(key,
					"port %q is configured on more than one bridge (%s, %s)", port, pairs[i].Value, bridge)
			}
			continue
		}
		index[port] = len(pairs)
		pairs = append(pairs, Pair{Key: port, Value: bridge})
	}

	if len(pairs) == 0 && defaultBridge != "" {
		return []Pair{{Key: fields[0], Value: defaultBridge}}, nil
	}
	return pairs, nil
}

// ParseBridgeMappings parses bridge-mappings into physnet -> bridge pairs.
func ParseBridgeMappings(s string) ([]Pair, error) {
	pairs, err := ParseTokenPairs("bridge-mappings", s)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.Key == "" || p.Value == "" {
			return nil, common.NewMalformedConfig("bridge-mappings", "incomplete mapping %q", p.Key+":"+p.Value)
		}
	}
	return pairs, nil
}

// VLANRange is one vlan-ranges entry. A physnet listed without a range is a
// flat provider and has HasRange false.
type VLANRange struct {
	Physnet  string
	Min      int
	Max      int
	HasRange bool
}

// ParseVLANRanges parses vlan-ranges tokens of the form physnet[:min:max].
func ParseVLANRanges(s string) ([]VLANRange, error) {
	var ranges []VLANRange
	for _, p := range ParseMappings(s, false) {
		r := VLANRange{Physnet: p.Key}
		if p.Value != "" {
			first, last, found := Partition(p.Value)
			if !found {
				return nil, common.NewMalformedConfig("vlan-ranges", "range %q for %s is not min:max", p.Value, p.Key)
			}
			low, err := strconv.Atoi(first)
			if err != nil {
				return nil, common.NewMalformedConfig("vlan-ranges", "non-numeric vlan %q for %s", first, p.Key)
			}
			high, err := strconv.Atoi(last)
			if err != nil {
				return nil, common.NewMalformedConfig("vlan-ranges", "non-numeric vlan %q for %s", last, p.Key)
			}
			if low > high {
				return nil, common.NewMalformedConfig("vlan-ranges", "range %d:%d for %s is reversed", low, high, p.Key)
			}
			r.Min, r.Max, r.HasRange = low, high, true
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// ParseSriovDeviceMappings returns the interface names of a
// sriov-device-mappings value ("physnet:interface ...").
func ParseSriovDeviceMappings(s string) ([]string, error) {
	pairs, err := ParseTokenPairs("sriov-device-mappings", s)
	if err != nil {
		return nil, err
	}
	return lo.Map(pairs, func(p Pair, _ int) string { return p.Value }), nil
}

// ParseCPUList parses a Linux cpulist ("0-3,8,16-23") into a sorted list of
// cores without duplicates.
func ParseCPUList(s string) ([]int, error) {
	var cores []int
	for _, entry := range strings.Split(strings.TrimSpace(s), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		first, last, isRange := strings.Cut(entry, "-")
		low, err := strconv.Atoi(first)
		if err != nil {
			return nil, common.NewMalformedConfig("cpulist", "non-numeric entry %q", entry)
		}
		high := low
		if isRange {
			if high, err = strconv.Atoi(last); err != nil {
				return nil, common.NewMalformedConfig("cpulist", "non-numeric entry %q", entry)
			}
			if high < low {
				return nil, common.NewMalformedConfig("cpulist", "reversed range %q", entry)
			}
		}
		for core := low; core <= high; core++ {
			cores = append(cores, core)
		}
	}
	if len(cores) == 0 {
		return nil, nil
	}
	cores = lo.Uniq(cores)
	sort.Ints(cores)
	return cores, nil
}

// SriovMode selects how sriov-numvfs is applied.
type SriovMode int

const (
	// SriovAuto uses every device's own maximum.
	SriovAuto SriovMode = iota
	// SriovBlanket applies one count to every capable device.
	SriovBlanket
	// SriovPerDevice applies counts to the named devices only.
	SriovPerDevice
)

// SriovNumVFs is a parsed sriov-numvfs value.
type SriovNumVFs struct {
	Mode    SriovMode
	Blanket int
	Devices []DeviceVFs
}

// DeviceVFs is one interface:count entry.
type DeviceVFs struct {
	Interface string
	NumVFs    int
}

// ParseSriovNumVFs parses "auto", a bare integer or a list of
// interface:count tokens.
func ParseSriovNumVFs(s string) (SriovNumVFs, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "auto" {
		return SriovNumVFs{Mode: SriovAuto}, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return SriovNumVFs{}, common.NewMalformedConfig("sriov-numvfs", "negative count %d", n)
		}
		return SriovNumVFs{Mode: SriovBlanket, Blanket: n}, nil
	}

	pairs, err := ParseTokenPairs("sriov-numvfs", s)
	if err != nil {
		return SriovNumVFs{}, err
	}
	result := SriovNumVFs{Mode: SriovPerDevice}
	for _, p := range pairs {
		n, err := strconv.Atoi(p.Value)
		if err != nil || n < 0 || p.Key == "" {
			return SriovNumVFs{}, common.NewMalformedConfig("sriov-numvfs", "invalid entry %q", p.Key+":"+p.Value)
		}
		result.Devices = append(result.Devices, DeviceVFs{Interface: p.Key, NumVFs: n})
	}
	return result, nil
}

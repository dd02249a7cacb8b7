package ldmrs

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
)

var paramNames = map[string]wire.ParamIndex{
	"address": wire.ParamIPAddress,
	"port":    wire.ParamTCPPort,
	"subnet":  wire.ParamSubnetMask,
	"gateway": wire.ParamGateway,
}

func lookupParam(name string) (wire.ParamIndex, error) {
	idx, ok := paramNames[strings.TrimSpace(name)]
	if !ok {
		return 0, &ValidationError{Input: name, Reason: "expected one of address, port, subnet, gateway"}
	}
	return idx, nil
}

// ParseGetSpec turns "address,port" into get-parameter commands in the
// order given.
func ParseGetSpec(list string) ([]wire.Command, error) {
	if strings.TrimSpace(list) == "" {
		return nil, &ValidationError{Input: list, Reason: "no parameter names"}
	}
	var cmds []wire.Command
	for _, name := range strings.Split(list, ",") {
		idx, err := lookupParam(name)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, wire.NewGet(idx))
	}
	return cmds, nil
}

// ParseSetSpec turns "address=192.168.0.5,port=12002" into set-parameter
// commands in the order given. Nothing is returned unless every assignment
// is valid.
func ParseSetSpec(list string) ([]wire.Command, error) {
	if strings.TrimSpace(list) == "" {
		return nil, &ValidationError{Input: list, Reason: "no assignments"}
	}
	var cmds []wire.Command
	for _, kv := range strings.Split(list, ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, &ValidationError{Input: kv, Reason: "expected <name>=<value>"}
		}
		idx, err := lookupParam(name)
		if err != nil {
			return nil, err
		}
		value = strings.TrimSpace(value)

		var v [4]byte
		if idx == wire.ParamTCPPort {
			v, err = PortValue(value)
		} else {
			v, err = AddressValue(value)
		}
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, wire.NewSet(idx, v))
	}
	return cmds, nil
}

// AddressValue encodes a dotted IPv4 address as the device stores it: the
// octets in reverse order, so 192.168.0.5 becomes [5 0 168 192].
func AddressValue(s string) ([4]byte, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return [4]byte{}, &ValidationError{Input: s, Reason: "expected dotted IPv4 address"}
	}
	a := addr.As4()
	return [4]byte{a[3], a[2], a[1], a[0]}, nil
}

// PortValue encodes a TCP port as a little-endian uint16 in the first two
// value bytes.
func PortValue(s string) ([4]byte, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return [4]byte{}, &ValidationError{Input: s, Reason: "expected port 1-65535"}
	}
	var v [4]byte
	binary.LittleEndian.PutUint16(v[:2], uint16(n))
	return v, nil
}

// FormatParameter renders the value carried by a get-parameter reply.
func FormatParameter(r wire.Response) string {
	switch r.Index {
	case wire.ParamTCPPort:
		return strconv.Itoa(int(binary.LittleEndian.Uint16(r.Value[:2])))
	case wire.ParamIPAddress, wire.ParamSubnetMask, wire.ParamGateway:
		v := r.Value
		return netip.AddrFrom4([4]byte{v[3], v[2], v[1], v[0]}).String()
	}
	return fmt.Sprintf("% x", r.Value[:])
}

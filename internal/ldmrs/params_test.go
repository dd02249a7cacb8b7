package ldmrs

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
)

func TestAddressValue(t *testing.T) {
	got, err := AddressValue("192.168.0.5")
	if err != nil {
		t.Fatalf("AddressValue: %v", err)
	}
	if want := [4]byte{5, 0, 168, 192}; got != want {
		t.Errorf("AddressValue = %v, want %v", got, want)
	}
}

func TestParseSetSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []wire.Command
		wantErr bool
	}{
		{
			name: "address and port in order",
			spec: "address=192.168.0.5,port=12002",
			want: []wire.Command{
				wire.NewSet(wire.ParamIPAddress, [4]byte{5, 0, 168, 192}),
				wire.NewSet(wire.ParamTCPPort, [4]byte{0xE2, 0x2E, 0, 0}),
			},
		},
		{
			name: "port first",
			spec: "port=1,address=10.0.0.2",
			want: []wire.Command{
				wire.NewSet(wire.ParamTCPPort, [4]byte{1, 0, 0, 0}),
				wire.NewSet(wire.ParamIPAddress, [4]byte{2, 0, 0, 10}),
			},
		},
		{
			name: "subnet and gateway",
			spec: "subnet=255.255.255.0,gateway=192.168.0.254",
			want: []wire.Command{
				wire.NewSet(wire.ParamSubnetMask, [4]byte{0, 255, 255, 255}),
				wire.NewSet(wire.ParamGateway, [4]byte{254, 0, 168, 192}),
			},
		},
		{name: "three octets", spec: "address=192.168.0", wantErr: true},
		{name: "octet out of range", spec: "address=192.168.0.300", wantErr: true},
		{name: "ipv6", spec: "address=::1", wantErr: true},
		{name: "port out of range", spec: "port=70000", wantErr: true},
		{name: "port zero", spec: "port=0", wantErr: true},
		{name: "unknown name", spec: "netmask=1.2.3.4", wantErr: true},
		{name: "missing value", spec: "address", wantErr: true},
		{name: "empty", spec: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSetSpec(tt.spec)
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("ParseSetSpec(%q) err = %v, want *ValidationError", tt.spec, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSetSpec(%q): %v", tt.spec, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseSetSpec(%q) mismatch (-want +got):\n%s", tt.spec, diff)
			}
		})
	}
}

func TestParseGetSpec(t *testing.T) {
	got, err := ParseGetSpec("address, port")
	if err != nil {
		t.Fatalf("ParseGetSpec: %v", err)
	}
	want := []wire.Command{wire.NewGet(wire.ParamIPAddress), wire.NewGet(wire.ParamTCPPort)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", "address,mtu"} {
		if _, err := ParseGetSpec(bad); err == nil {
			t.Errorf("ParseGetSpec(%q) succeeded, want error", bad)
		}
	}
}

func TestFormatParameter(t *testing.T) {
	tests := []struct {
		resp wire.Response
		want string
	}{
		{wire.Response{ID: wire.CmdGetParameter, Index: wire.ParamIPAddress, Value: [4]byte{5, 0, 168, 192}}, "192.168.0.5"},
		{wire.Response{ID: wire.CmdGetParameter, Index: wire.ParamTCPPort, Value: [4]byte{0xE2, 0x2E}}, "12002"},
		{wire.Response{ID: wire.CmdGetParameter, Index: 0x2000, Value: [4]byte{1, 2, 3, 4}}, "01 02 03 04"},
	}
	for _, tt := range tests {
		if got := FormatParameter(tt.resp); got != tt.want {
			t.Errorf("FormatParameter(%v) = %q, want %q", tt.resp.Index, got, tt.want)
		}
	}
}

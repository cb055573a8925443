// Copyright 2024 The xdp2p Authors
// This file is part of xdp2p.
//
// xdp2p is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// xdp2p is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with xdp2p. If not, see <http://www.gnu.org/licenses/>.

package nat

import "testing"

func TestParseNone(t *testing.T) {
	for _, s := range []string{"", "none", "off"} {
		iface, err := Parse(s)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", s, err)
		}
		if iface != nil {
			t.Errorf("Parse(%q) = %v, want nil", s, iface)
		}
	}
}

func TestParseUPnP(t *testing.T) {
	iface, err := Parse("upnp")
	if err != nil {
		t.Fatal(err)
	}
	if iface.String() != "UPnP" {
		t.Errorf("String() = %q, want %q", iface.String(), "UPnP")
	}
}

func TestParsePMPWithGateway(t *testing.T) {
	iface, err := Parse("pmp:192.168.1.1")
	if err != nil {
		t.Fatal(err)
	}
	want := "NAT-PMP(192.168.1.1)"
	if iface.String() != want {
		t.Errorf("String() = %q, want %q", iface.String(), want)
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := Parse("carrier-pigeon"); err == nil {
		t.Error("expected error for unknown mechanism")
	}
}

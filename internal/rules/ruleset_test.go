package rules

import (
	"errors"
	"math/rand"
	"net/netip"
	"reflect"
	"testing"

	"icc.tech/pktbridge/internal/core"
)

var testIfaces = Interfaces{
	"eth0": true, // both roles
	"eth1": true,
	"eth2": true,
	"tap0": false, // ingress only
}

func udpHeader(ingress string, dstPort uint16) core.Header {
	return core.Header{
		Ingress:   ingress,
		EtherType: 0x0800,
		Protocol:  17,
		SrcIP:     netip.MustParseAddr("192.168.1.10"),
		DstIP:     netip.MustParseAddr("239.255.255.250"),
		SrcPort:   40000,
		DstPort:   dstPort,
	}
}

func TestCompileRequiresExplicitDefault(t *testing.T) {
	if _, err := Compile(nil, "", testIfaces); err == nil {
		t.Fatal("Expected error for missing default_action")
	}
	if _, err := Compile(nil, "reject", testIfaces); err == nil {
		t.Fatal("Expected error for unknown default_action")
	}
	if _, err := Compile(nil, DefaultDrop, testIfaces); err != nil {
		t.Fatalf("Compile with default drop failed: %v", err)
	}
}

func TestCompileRejectsInvalidRule(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
	}{
		{"no action", Spec{Protocol: "udp"}},
		{"unknown action", Spec{Action: "mirror", Egress: []string{"eth1"}}},
		{"forward without egress", Spec{Action: "forward"}},
		{"duplicate with one egress", Spec{Action: "duplicate", Egress: []string{"eth1"}}},
		{"drop with egress", Spec{Action: "drop", Egress: []string{"eth1"}}},
		{"unknown egress", Spec{Action: "forward", Egress: []string{"eth9"}}},
		{"ingress-only egress", Spec{Action: "forward", Egress: []string{"tap0"}}},
		{"repeated egress", Spec{Action: "forward", Egress: []string{"eth1", "eth1"}}},
		{"bad cidr", Spec{Action: "forward", Egress: []string{"eth1"}, SrcCIDR: "10.0.0.0/40"}},
		{"bad ports", Spec{Action: "forward", Egress: []string{"eth1"}, DstPorts: "90-80"}},
		{"bad protocol", Spec{Action: "forward", Egress: []string{"eth1"}, Protocol: "quic"}},
		{"bad vlan", Spec{Action: "forward", Egress: []string{"eth1"}, VLAN: 5000}},
		{"unknown ingress", Spec{Action: "forward", Egress: []string{"eth1"}, Ingress: []string{"eth9"}}},
		{"never-viable hairpin", Spec{Action: "forward", Egress: []string{"eth1"}, Ingress: []string{"eth1"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile([]Spec{tc.spec}, DefaultDrop, testIfaces)
			if err == nil {
				t.Fatalf("Expected compile error for %s", tc.name)
			}
			var invalid *InvalidRuleError
			if errors.As(err, &invalid) && invalid.Index != 0 {
				t.Errorf("Expected rule index 0, got %d", invalid.Index)
			}
		})
	}
}

func TestCompileAllOrNothing(t *testing.T) {
	specs := []Spec{
		{Action: "forward", Egress: []string{"eth1"}},
		{Action: "forward"}, // invalid
	}
	_, err := Compile(specs, DefaultDrop, testIfaces)
	if err == nil {
		t.Fatal("Expected compile failure when one rule is invalid")
	}
	var invalid *InvalidRuleError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidRuleError, got %v", err)
	}
	if invalid.Index != 1 {
		t.Errorf("Expected failing index 1, got %d", invalid.Index)
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	specs := []Spec{
		{Name: "udp-fwd", Protocol: "udp", Action: "forward", Egress: []string{"eth1"}},
		{Name: "udp-drop", Protocol: "udp", Action: "drop"},
	}
	rs, err := Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	d := rs.Classify(udpHeader("eth0", 1900))
	if d.Action != core.ActionForward {
		t.Fatalf("Expected forward from first matching rule, got %+v", d)
	}
	if d.Rule != 0 {
		t.Errorf("Expected rule index 0, got %d", d.Rule)
	}
	if !reflect.DeepEqual(d.Egress, []string{"eth1"}) {
		t.Errorf("Expected egress [eth1], got %v", d.Egress)
	}
}

func TestClassifyDefaultActions(t *testing.T) {
	rs, err := Compile(nil, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	d := rs.Classify(udpHeader("eth0", 1900))
	if d.Action != core.ActionDrop || d.Reason != core.ReasonDefault || d.Rule != core.DefaultRule {
		t.Errorf("Expected default drop, got %+v", d)
	}

	rs, err = Compile(nil, DefaultForwardAll, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	d = rs.Classify(udpHeader("eth0", 1900))
	if d.Action != core.ActionForward {
		t.Fatalf("Expected default forward-all, got %+v", d)
	}
	// forward-all excludes the ingress interface and never hairpins.
	if !reflect.DeepEqual(d.Egress, []string{"eth1", "eth2"}) {
		t.Errorf("Expected egress [eth1 eth2], got %v", d.Egress)
	}
}

func TestClassifyHairpinFiltering(t *testing.T) {
	// Hairpin disabled: ingress is filtered from the egress set.
	specs := []Spec{{Action: "forward", Egress: []string{"eth0", "eth1"}}}
	rs, err := Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	d := rs.Classify(udpHeader("eth0", 1900))
	if !reflect.DeepEqual(d.Egress, []string{"eth1"}) {
		t.Errorf("Expected hairpin target filtered, got %v", d.Egress)
	}

	// Filtering that empties the set yields Drop(no-viable-egress).
	specs = []Spec{{Action: "forward", Egress: []string{"eth0"}}}
	rs, err = Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	d = rs.Classify(udpHeader("eth0", 1900))
	if d.Action != core.ActionDrop || d.Reason != core.ReasonNoViableEgress {
		t.Errorf("Expected drop with no-viable-egress, got %+v", d)
	}
	if d.Rule != 0 {
		t.Errorf("Expected the matching rule still attributed, got %d", d.Rule)
	}

	// Hairpin enabled: the frame may leave the way it came.
	specs = []Spec{{Action: "forward", Egress: []string{"eth0"}, Hairpin: true}}
	rs, err = Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	d = rs.Classify(udpHeader("eth0", 1900))
	if d.Action != core.ActionForward || !reflect.DeepEqual(d.Egress, []string{"eth0"}) {
		t.Errorf("Expected hairpin forward to eth0, got %+v", d)
	}
}

func TestClassifyMatchFields(t *testing.T) {
	specs := []Spec{
		{
			Name:     "ssdp",
			Protocol: "udp",
			DstCIDR:  "239.255.255.250/32",
			DstPorts: "1900",
			Action:   "forward",
			Egress:   []string{"eth1"},
		},
		{
			Name:     "vlan100-web",
			Protocol: "tcp",
			VLAN:     100,
			DstPorts: "80-443",
			Action:   "forward",
			Egress:   []string{"eth2"},
		},
		{
			Name:    "from-tap0",
			Ingress: []string{"tap0"},
			Action:  "drop",
		},
	}
	rs, err := Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if d := rs.Classify(udpHeader("eth0", 1900)); d.Rule != 0 {
		t.Errorf("SSDP frame: expected rule 0, got %+v", d)
	}
	if d := rs.Classify(udpHeader("eth0", 5353)); d.Rule != core.DefaultRule {
		t.Errorf("Non-SSDP port: expected default, got %+v", d)
	}

	tcpVLAN := core.Header{
		Ingress:   "eth0",
		EtherType: 0x0800,
		VLAN:      100,
		Protocol:  6,
		SrcIP:     netip.MustParseAddr("10.0.0.1"),
		DstIP:     netip.MustParseAddr("10.0.0.2"),
		SrcPort:   50000,
		DstPort:   443,
	}
	if d := rs.Classify(tcpVLAN); d.Rule != 1 {
		t.Errorf("VLAN 100 TCP 443: expected rule 1, got %+v", d)
	}
	tcpVLAN.VLAN = 200
	if d := rs.Classify(tcpVLAN); d.Rule != core.DefaultRule {
		t.Errorf("VLAN 200: expected default, got %+v", d)
	}

	if d := rs.Classify(udpHeader("tap0", 9999)); d.Rule != 2 || d.Action != core.ActionDrop {
		t.Errorf("tap0 ingress: expected drop rule 2, got %+v", d)
	}
}

func TestClassifyNonIPFrames(t *testing.T) {
	specs := []Spec{
		{Name: "ip-only", Protocol: "udp", Action: "forward", Egress: []string{"eth1"}},
		{Name: "catch-all", Action: "forward", Egress: []string{"eth2"}},
	}
	rs, err := Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	arp := core.Header{Ingress: "eth0", EtherType: 0x0806}
	d := rs.Classify(arp)
	if d.Rule != 1 {
		t.Errorf("ARP frame: expected catch-all rule 1, got %+v", d)
	}
}

func TestClassifyDeterminism(t *testing.T) {
	specs := []Spec{
		{Protocol: "udp", DstPorts: "1-1024", Action: "forward", Egress: []string{"eth1"}},
		{Protocol: "tcp", SrcCIDR: "10.0.0.0/8", Action: "drop"},
		{VLAN: 42, Action: "forward", Egress: []string{"eth1", "eth2"}},
	}
	rs, err := Compile(specs, DefaultForwardAll, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	ingresses := []string{"eth0", "eth1", "eth2", "tap0"}
	for i := 0; i < 1000; i++ {
		var src, dst [4]byte
		rng.Read(src[:])
		rng.Read(dst[:])
		h := core.Header{
			Ingress:   ingresses[rng.Intn(len(ingresses))],
			EtherType: 0x0800,
			VLAN:      uint16(rng.Intn(3) * 42),
			Protocol:  uint8(rng.Intn(20)),
			SrcIP:     netip.AddrFrom4(src),
			DstIP:     netip.AddrFrom4(dst),
			SrcPort:   uint16(rng.Intn(65536)),
			DstPort:   uint16(rng.Intn(65536)),
		}
		first := rs.Classify(h)
		for j := 0; j < 3; j++ {
			if got := rs.Classify(h); !reflect.DeepEqual(got, first) {
				t.Fatalf("Classify not deterministic for %+v: %+v vs %+v", h, first, got)
			}
		}
	}
}

func TestGenerationIncreases(t *testing.T) {
	a, err := Compile(nil, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	b, err := Compile(nil, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if b.Generation() <= a.Generation() {
		t.Errorf("Expected generation to increase: %d then %d", a.Generation(), b.Generation())
	}
}

func TestRuleName(t *testing.T) {
	specs := []Spec{
		{Name: "named", Action: "drop"},
		{Action: "drop"},
	}
	rs, err := Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if rs.RuleName(0) != "named" {
		t.Errorf("Expected 'named', got %q", rs.RuleName(0))
	}
	if rs.RuleName(1) != "rule-1" {
		t.Errorf("Expected 'rule-1', got %q", rs.RuleName(1))
	}
	if rs.RuleName(core.DefaultRule) != "default" {
		t.Errorf("Expected 'default', got %q", rs.RuleName(core.DefaultRule))
	}
}

func BenchmarkClassify(b *testing.B) {
	specs := []Spec{
		{Protocol: "tcp", DstPorts: "22", Action: "drop"},
		{Protocol: "tcp", SrcCIDR: "10.0.0.0/8", Action: "forward", Egress: []string{"eth1"}},
		{Protocol: "udp", DstCIDR: "239.255.255.250/32", DstPorts: "1900", Action: "forward", Egress: []string{"eth1", "eth2"}},
	}
	rs, err := Compile(specs, DefaultDrop, testIfaces)
	if err != nil {
		b.Fatalf("Compile failed: %v", err)
	}
	h := udpHeader("eth0", 1900)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rs.Classify(h)
	}
}

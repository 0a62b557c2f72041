package rules

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"icc.tech/pktbridge/internal/core"
)

// InvalidRuleError reports a single rule that failed compilation.
// Compilation is all-or-nothing: one invalid rule rejects the whole set.
type InvalidRuleError struct {
	Index  int
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("rule %d: %s", e.Index, e.Reason)
}

// generation distinguishes rule set snapshots process-wide. Flow table
// entries are stamped with it so a cached decision can never outlive the
// snapshot it was computed from.
var generation atomic.Uint64

type portRange struct {
	lo, hi uint16
}

func (p portRange) match(port uint16) bool {
	return port >= p.lo && port <= p.hi
}

// rule is one compiled match/action entry.
type rule struct {
	name    string
	proto   uint8
	anyProt bool
	srcNet  netip.Prefix
	dstNet  netip.Prefix
	hasSrc  bool
	hasDst  bool
	srcPort portRange
	dstPort portRange
	hasSP   bool
	hasDP   bool
	vlan    uint16 // 0 = any
	ingress map[string]struct{}
	action  core.Action
	egress  []string
	hairpin bool
}

// RuleSet is an immutable compiled rule collection. It is shared read-only
// across all ingress workers and replaced, never mutated, on reload.
type RuleSet struct {
	rules         []rule
	defaultDrop   bool     // false = forward-all
	defaultEgress []string // all egress-capable interfaces, sorted
	gen           uint64
}

// Compile validates and compiles an ordered rule list against the interface
// topology. defaultAction must be explicit: "drop" or "forward-all".
func Compile(specs []Spec, defaultAction string, ifaces Interfaces) (*RuleSet, error) {
	rs := &RuleSet{gen: generation.Add(1)}

	switch defaultAction {
	case DefaultDrop:
		rs.defaultDrop = true
	case DefaultForwardAll:
		for name, egressCapable := range ifaces {
			if egressCapable {
				rs.defaultEgress = append(rs.defaultEgress, name)
			}
		}
		sort.Strings(rs.defaultEgress)
		if len(rs.defaultEgress) == 0 {
			return nil, fmt.Errorf("%w: default action forward-all with no egress-capable interfaces", core.ErrConfigInvalid)
		}
	case "":
		return nil, fmt.Errorf("%w: default_action must be set explicitly (drop or forward-all)", core.ErrConfigInvalid)
	default:
		return nil, fmt.Errorf("%w: unknown default_action %q", core.ErrConfigInvalid, defaultAction)
	}

	rs.rules = make([]rule, 0, len(specs))
	for i, spec := range specs {
		r, err := compileRule(i, spec, ifaces)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, r)
	}

	return rs, nil
}

func compileRule(index int, spec Spec, ifaces Interfaces) (rule, error) {
	fail := func(format string, args ...interface{}) (rule, error) {
		return rule{}, &InvalidRuleError{Index: index, Reason: fmt.Sprintf(format, args...)}
	}

	r := rule{name: spec.Name, hairpin: spec.Hairpin}
	if r.name == "" {
		r.name = fmt.Sprintf("rule-%d", index)
	}

	proto, anyProt, err := parseProtocol(spec.Protocol)
	if err != nil {
		return fail("%v", err)
	}
	r.proto, r.anyProt = proto, anyProt

	if spec.SrcCIDR != "" {
		prefix, err := netip.ParsePrefix(spec.SrcCIDR)
		if err != nil {
			return fail("invalid src_cidr %q: %v", spec.SrcCIDR, err)
		}
		r.srcNet, r.hasSrc = prefix.Masked(), true
	}
	if spec.DstCIDR != "" {
		prefix, err := netip.ParsePrefix(spec.DstCIDR)
		if err != nil {
			return fail("invalid dst_cidr %q: %v", spec.DstCIDR, err)
		}
		r.dstNet, r.hasDst = prefix.Masked(), true
	}

	if spec.SrcPorts != "" {
		pr, err := parsePortRange(spec.SrcPorts)
		if err != nil {
			return fail("invalid src_ports %q: %v", spec.SrcPorts, err)
		}
		r.srcPort, r.hasSP = pr, true
	}
	if spec.DstPorts != "" {
		pr, err := parsePortRange(spec.DstPorts)
		if err != nil {
			return fail("invalid dst_ports %q: %v", spec.DstPorts, err)
		}
		r.dstPort, r.hasDP = pr, true
	}

	if spec.VLAN > 4094 {
		return fail("invalid vlan %d (must be 1-4094)", spec.VLAN)
	}
	r.vlan = spec.VLAN

	if len(spec.Ingress) > 0 {
		r.ingress = make(map[string]struct{}, len(spec.Ingress))
		for _, name := range spec.Ingress {
			if _, ok := ifaces[name]; !ok {
				return fail("unknown ingress interface %q", name)
			}
			r.ingress[name] = struct{}{}
		}
	}

	switch spec.Action {
	case "drop":
		r.action = core.ActionDrop
		if len(spec.Egress) > 0 {
			return fail("drop rule must not name egress interfaces")
		}
		return r, nil

	case "forward":
		r.action = core.ActionForward
		if len(spec.Egress) == 0 {
			return fail("forward rule requires a non-empty egress set")
		}
	case "duplicate":
		r.action = core.ActionForward
		if len(spec.Egress) < 2 {
			return fail("duplicate rule requires at least two egress interfaces")
		}
	case "":
		return fail("action must be set")
	default:
		return fail("unknown action %q", spec.Action)
	}

	seen := make(map[string]struct{}, len(spec.Egress))
	for _, name := range spec.Egress {
		if _, dup := seen[name]; dup {
			return fail("duplicate egress interface %q", name)
		}
		seen[name] = struct{}{}

		egressCapable, ok := ifaces[name]
		if !ok {
			return fail("unknown egress interface %q", name)
		}
		if !egressCapable {
			return fail("interface %q has no egress role", name)
		}
		r.egress = append(r.egress, name)
	}

	// A rule pinned to ingress interfaces whose egress set can never survive
	// hairpin filtering is a misconfiguration, not a runtime surprise.
	if !r.hairpin && len(r.ingress) > 0 {
		for ingress := range r.ingress {
			if viableEgress(r.egress, ingress) == 0 {
				return fail("egress set {%s} is never viable from ingress %q without hairpin",
					strings.Join(r.egress, ", "), ingress)
			}
		}
	}

	return r, nil
}

func parseProtocol(s string) (proto uint8, anyProt bool, err error) {
	switch strings.ToLower(s) {
	case "", "any":
		return 0, true, nil
	case "tcp":
		return 6, false, nil
	case "udp":
		return 17, false, nil
	case "icmp":
		return 1, false, nil
	case "icmpv6":
		return 58, false, nil
	default:
		n, convErr := strconv.ParseUint(s, 10, 8)
		if convErr != nil {
			return 0, false, fmt.Errorf("invalid protocol %q", s)
		}
		return uint8(n), false, nil
	}
}

func parsePortRange(s string) (portRange, error) {
	lo, hi, found := strings.Cut(s, "-")
	loN, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 16)
	if err != nil {
		return portRange{}, fmt.Errorf("invalid port %q", lo)
	}
	if !found {
		return portRange{lo: uint16(loN), hi: uint16(loN)}, nil
	}
	hiN, err := strconv.ParseUint(strings.TrimSpace(hi), 10, 16)
	if err != nil {
		return portRange{}, fmt.Errorf("invalid port %q", hi)
	}
	if hiN < loN {
		return portRange{}, fmt.Errorf("inverted range %s", s)
	}
	return portRange{lo: uint16(loN), hi: uint16(hiN)}, nil
}

// viableEgress counts egress targets that survive hairpin filtering.
func viableEgress(egress []string, ingress string) int {
	n := len(egress)
	for _, name := range egress {
		if name == ingress {
			n--
		}
	}
	return n
}

// Generation identifies this snapshot; it increases with every Compile.
func (rs *RuleSet) Generation() uint64 { return rs.gen }

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// RuleName returns the configured or generated name of rule i,
// or "default" for core.DefaultRule.
func (rs *RuleSet) RuleName(i int) string {
	if i == core.DefaultRule {
		return "default"
	}
	return rs.rules[i].name
}

// Classify matches the header against the rules in order; the first match
// wins. It is a pure function of the header and this snapshot: no state is
// read or written, so identical inputs always produce identical decisions.
func (rs *RuleSet) Classify(h core.Header) core.Decision {
	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.match(h) {
			continue
		}

		if r.action == core.ActionDrop {
			return core.Decision{Action: core.ActionDrop, Reason: core.ReasonRule, Rule: i}
		}
		return forwardDecision(r.egress, h.Ingress, r.hairpin, i)
	}

	if rs.defaultDrop {
		return core.Decision{Action: core.ActionDrop, Reason: core.ReasonDefault, Rule: core.DefaultRule}
	}
	// Default forward-all never hairpins.
	return forwardDecision(rs.defaultEgress, h.Ingress, false, core.DefaultRule)
}

// forwardDecision applies hairpin filtering to the egress set. The filtered
// slice is freshly allocated only when filtering actually removes a target,
// so the common path shares the compiled set.
func forwardDecision(egress []string, ingress string, hairpin bool, ruleIdx int) core.Decision {
	if !hairpin {
		if n := viableEgress(egress, ingress); n != len(egress) {
			if n == 0 {
				return core.Decision{Action: core.ActionDrop, Reason: core.ReasonNoViableEgress, Rule: ruleIdx}
			}
			filtered := make([]string, 0, n)
			for _, name := range egress {
				if name != ingress {
					filtered = append(filtered, name)
				}
			}
			egress = filtered
		}
	}
	return core.Decision{Action: core.ActionForward, Egress: egress, Rule: ruleIdx}
}

func (r *rule) match(h core.Header) bool {
	if !r.anyProt && r.proto != h.Protocol {
		return false
	}
	if r.vlan != 0 && r.vlan != h.VLAN {
		return false
	}
	if r.ingress != nil {
		if _, ok := r.ingress[h.Ingress]; !ok {
			return false
		}
	}
	if r.hasSrc && (!h.SrcIP.IsValid() || !r.srcNet.Contains(h.SrcIP)) {
		return false
	}
	if r.hasDst && (!h.DstIP.IsValid() || !r.dstNet.Contains(h.DstIP)) {
		return false
	}
	if r.hasSP && !r.srcPort.match(h.SrcPort) {
		return false
	}
	if r.hasDP && !r.dstPort.match(h.DstPort) {
		return false
	}
	return true
}

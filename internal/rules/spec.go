// Package rules implements rule compilation and frame classification.
package rules

// Spec is one match/action rule as written in configuration.
// Zero-valued match fields mean "any"; at least the action must be set.
type Spec struct {
	Name     string   `mapstructure:"name" yaml:"name"`           // Optional; defaults to rule-<index>
	Protocol string   `mapstructure:"protocol" yaml:"protocol"`   // tcp | udp | icmp | icmpv6 | any | numeric
	SrcCIDR  string   `mapstructure:"src_cidr" yaml:"src_cidr"`   // e.g. 192.168.0.0/16
	DstCIDR  string   `mapstructure:"dst_cidr" yaml:"dst_cidr"`   //
	SrcPorts string   `mapstructure:"src_ports" yaml:"src_ports"` // "1900" or "1000-2000"
	DstPorts string   `mapstructure:"dst_ports" yaml:"dst_ports"` //
	VLAN     uint16   `mapstructure:"vlan" yaml:"vlan"`           // 0 = any, otherwise 1-4094
	Ingress  []string `mapstructure:"ingress" yaml:"ingress"`     // Restrict to these ingress interfaces; empty = any
	Action   string   `mapstructure:"action" yaml:"action"`       // forward | duplicate | drop
	Egress   []string `mapstructure:"egress" yaml:"egress"`       // Target interfaces for forward/duplicate
	Hairpin  bool     `mapstructure:"hairpin" yaml:"hairpin"`     // Allow forwarding back out the ingress interface
}

// DefaultAction values accepted by Compile.
const (
	DefaultDrop       = "drop"
	DefaultForwardAll = "forward-all"
)

// Interfaces describes the interface topology a rule set is compiled
// against: name → whether the interface can act as an egress target.
type Interfaces map[string]bool

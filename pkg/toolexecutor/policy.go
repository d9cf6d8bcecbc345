package toolexecutor

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Decision is a policy's verdict for one tool call.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// PolicyDecision is a Decision plus the reason and the policy name that
// produced it, so a denial or an approval prompt can say why.
type PolicyDecision struct {
	Decision Decision
	Reason   string
	Policy   string
}

func allow(policy string) PolicyDecision { return PolicyDecision{Decision: DecisionAllow, Policy: policy} }

func deny(policy, reason string) PolicyDecision {
	return PolicyDecision{Decision: DecisionDeny, Reason: reason, Policy: policy}
}

func ask(policy, reason string) PolicyDecision {
	return PolicyDecision{Decision: DecisionAsk, Reason: reason, Policy: policy}
}

// Policy decides whether a tool call may proceed.
type Policy interface {
	Name() string
	Decide(toolName string, args map[string]interface{}, caps *capabilityIndex) PolicyDecision
}

// AllowAllPolicy allows every call.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Name() string { return "allow-all" }
func (AllowAllPolicy) Decide(string, map[string]interface{}, *capabilityIndex) PolicyDecision {
	return allow("allow-all")
}

// DenyAllPolicy denies every call.
type DenyAllPolicy struct{}

func (DenyAllPolicy) Name() string { return "deny-all" }
func (DenyAllPolicy) Decide(toolName string, _ map[string]interface{}, _ *capabilityIndex) PolicyDecision {
	return deny("deny-all", fmt.Sprintf("tool %q denied by deny-all policy", toolName))
}

// ToolAllowListPolicy allows only the named tools (or any, if "*" is
// listed); everything else is denied.
type ToolAllowListPolicy struct {
	Tools map[string]bool
}

// NewToolAllowListPolicy builds a ToolAllowListPolicy from a tool name list.
func NewToolAllowListPolicy(tools ...string) *ToolAllowListPolicy {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t] = true
	}
	return &ToolAllowListPolicy{Tools: set}
}

func (p *ToolAllowListPolicy) Name() string { return "tool-allow-list" }

func (p *ToolAllowListPolicy) Decide(toolName string, _ map[string]interface{}, _ *capabilityIndex) PolicyDecision {
	if p.Tools["*"] || p.Tools[toolName] {
		return allow(p.Name())
	}
	return deny(p.Name(), fmt.Sprintf("tool %q is not in the allow list", toolName))
}

// ToolDenyListPolicy denies the named tools and allows everything else.
type ToolDenyListPolicy struct {
	Tools map[string]bool
}

// NewToolDenyListPolicy builds a ToolDenyListPolicy from a tool name list.
func NewToolDenyListPolicy(tools ...string) *ToolDenyListPolicy {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t] = true
	}
	return &ToolDenyListPolicy{Tools: set}
}

func (p *ToolDenyListPolicy) Name() string { return "tool-deny-list" }

func (p *ToolDenyListPolicy) Decide(toolName string, _ map[string]interface{}, _ *capabilityIndex) PolicyDecision {
	if p.Tools["*"] || p.Tools[toolName] {
		return deny(p.Name(), fmt.Sprintf("tool %q is in the deny list", toolName))
	}
	return allow(p.Name())
}

// CapabilityDenyListPolicy denies any call whose tool declares one of the
// listed capability tags.
type CapabilityDenyListPolicy struct {
	Capabilities []string
}

func (p *CapabilityDenyListPolicy) Name() string { return "capability-deny-list" }

func (p *CapabilityDenyListPolicy) Decide(toolName string, _ map[string]interface{}, caps *capabilityIndex) PolicyDecision {
	if caps != nil && caps.HasAny(toolName, p.Capabilities) {
		return deny(p.Name(), fmt.Sprintf("tool %q declares a denied capability", toolName))
	}
	return allow(p.Name())
}

// CapabilityRequiresApprovalPolicy asks for human approval on any call
// whose tool declares one of the listed capability tags, and allows
// everything else outright.
type CapabilityRequiresApprovalPolicy struct {
	Capabilities []string
}

func (p *CapabilityRequiresApprovalPolicy) Name() string { return "capability-requires-approval" }

func (p *CapabilityRequiresApprovalPolicy) Decide(toolName string, _ map[string]interface{}, caps *capabilityIndex) PolicyDecision {
	if caps != nil && caps.HasAny(toolName, p.Capabilities) {
		return ask(p.Name(), fmt.Sprintf("tool %q requires approval for its declared capabilities", toolName))
	}
	return allow(p.Name())
}

// CompositePolicy evaluates its members in order and stops at the first
// non-allow decision, attributing that decision's Policy field to the
// member that produced it. Allows only if every member allows.
type CompositePolicy struct {
	Policies []Policy
}

// NewCompositePolicy builds a CompositePolicy over policies, in evaluation order.
func NewCompositePolicy(policies ...Policy) *CompositePolicy {
	return &CompositePolicy{Policies: policies}
}

func (p *CompositePolicy) Name() string { return "composite" }

func (p *CompositePolicy) Decide(toolName string, args map[string]interface{}, caps *capabilityIndex) PolicyDecision {
	for _, member := range p.Policies {
		d := member.Decide(toolName, args, caps)
		if d.Decision != DecisionAllow {
			log.Debug().
				Str("tool", toolName).
				Str("policy", member.Name()).
				Str("decision", string(d.Decision)).
				Msg("toolexecutor: policy short-circuit")
			return d
		}
	}
	return allow(p.Name())
}

var _ Policy = (*CompositePolicy)(nil)

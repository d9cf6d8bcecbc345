package toolexecutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func idx(defs ...ToolDefinition) *capabilityIndex { return newCapabilityIndex(defs) }

func TestAllowAllPolicy_AllowsEverything(t *testing.T) {
	d := AllowAllPolicy{}.Decide("anything", nil, nil)
	assert.Equal(t, DecisionAllow, d.Decision)
}

func TestDenyAllPolicy_DeniesEverything(t *testing.T) {
	d := DenyAllPolicy{}.Decide("anything", nil, nil)
	assert.Equal(t, DecisionDeny, d.Decision)
}

func TestToolAllowListPolicy(t *testing.T) {
	p := NewToolAllowListPolicy("fs_read_file")
	assert.Equal(t, DecisionAllow, p.Decide("fs_read_file", nil, nil).Decision)
	assert.Equal(t, DecisionDeny, p.Decide("fs_write_file", nil, nil).Decision)
}

func TestToolDenyListPolicy(t *testing.T) {
	p := NewToolDenyListPolicy("fs_write_file")
	assert.Equal(t, DecisionDeny, p.Decide("fs_write_file", nil, nil).Decision)
	assert.Equal(t, DecisionAllow, p.Decide("fs_read_file", nil, nil).Decision)
}

func TestCapabilityDenyListPolicy(t *testing.T) {
	caps := idx(ToolDefinition{Name: "fs_write_file", Capabilities: []string{"fs:write"}})
	p := &CapabilityDenyListPolicy{Capabilities: []string{"fs:write"}}
	assert.Equal(t, DecisionDeny, p.Decide("fs_write_file", nil, caps).Decision)
}

func TestCapabilityRequiresApprovalPolicy(t *testing.T) {
	caps := idx(
		ToolDefinition{Name: "fs_write_file", Capabilities: []string{"fs:write"}},
		ToolDefinition{Name: "fs_read_file", Capabilities: []string{"fs:read"}},
	)
	p := &CapabilityRequiresApprovalPolicy{Capabilities: []string{"fs:write"}}
	assert.Equal(t, DecisionAsk, p.Decide("fs_write_file", nil, caps).Decision)
	assert.Equal(t, DecisionAllow, p.Decide("fs_read_file", nil, caps).Decision)
}

func TestCompositePolicy_ShortCircuitsOnFirstNonAllow(t *testing.T) {
	p := NewCompositePolicy(
		NewToolDenyListPolicy("fs_write_file"),
		&CapabilityRequiresApprovalPolicy{Capabilities: []string{"fs:read"}},
	)
	caps := idx(ToolDefinition{Name: "fs_write_file", Capabilities: []string{"fs:read"}})

	d := p.Decide("fs_write_file", nil, caps)
	assert.Equal(t, DecisionDeny, d.Decision)
	assert.Equal(t, "tool-deny-list", d.Policy)
}

func TestCompositePolicy_AllowsWhenEveryMemberAllows(t *testing.T) {
	p := NewCompositePolicy(AllowAllPolicy{}, NewToolAllowListPolicy("*"))
	d := p.Decide("anything", nil, nil)
	assert.Equal(t, DecisionAllow, d.Decision)
}

package rbac

import "strings"

type Checker struct {
	RoleCapabilities map[string][]string
}

func NewChecker(rc map[string][]string) *Checker {
	if rc == nil {
		rc = RoleCapabilities
	}
	return &Checker{RoleCapabilities: rc}
}

func (c *Checker) Has(role, capability string) bool {
	caps, ok := c.RoleCapabilities[role]
	if !ok {
		return false
	}
	for _, p := range caps {
		if p == "*" || matchCap(p, capability) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, capabilities ...string) bool {
	for _, p := range capabilities {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func matchCap(pattern, capability string) bool {
	if pattern == "*" || pattern == capability {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(capability, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

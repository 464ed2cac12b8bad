package toolexecutor

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// ToolPolicy defines which tools a caller can use
type ToolPolicy struct {
	Allow []string `json:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny"`  // List of denied tools (overrides allow)
}

// IsToolAllowed checks if a tool is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		// No policy means allow all
		return true
	}

	// Check deny list first (overrides allow list)
	for _, denied := range tp.Deny {
		if denied == toolName || denied == "*" {
			return false
		}
	}

	for _, allowed := range tp.Allow {
		if allowed == toolName || allowed == "*" {
			return true
		}
	}

	// If no explicit allow, deny by default
	return false
}

// Validate logs suspicious but legal policy combinations
func (tp *ToolPolicy) Validate() error {
	if tp == nil {
		return nil
	}

	hasAllowWildcard := contains(tp.Allow, "*")
	hasDenyWildcard := contains(tp.Deny, "*")

	if hasAllowWildcard && hasDenyWildcard {
		log.Warn().Msg("Policy has both allow and deny wildcards - deny will override allow")
	}
	if len(tp.Allow) == 0 {
		log.Warn().Msg("Policy has empty allow list - all tools will be denied by default")
	}

	return nil
}

// FilterToolsByPolicy filters a list of tool names based on a policy
func (tp *ToolPolicy) FilterToolsByPolicy(tools []string) []string {
	if tp == nil {
		return tools
	}

	filtered := []string{}
	for _, tool := range tools {
		if tp.IsToolAllowed(tool) {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

// HasPermission reports whether permission is covered by grants.
// A nil grant list means permissions are not enforced locally.
func HasPermission(grants []string, permission string) bool {
	if grants == nil || permission == "" {
		return true
	}
	return contains(grants, "*") || contains(grants, permission)
}

// permissionDeniedError is returned when a caller lacks the tool's document permission
func permissionDeniedError(toolName, permission string) error {
	return fmt.Errorf("permission denied: %s requires %s permission", toolName, permission)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

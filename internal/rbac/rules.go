package rbac

// Capability names used by the web-service surface.
const (
	CapManagePoll  = "poll:manage"
	CapManageQuiz  = "quiz:manage"
	CapCreateToken = "token:create"
	CapSiteConfig  = "site:config"
)

// Simple default policy. Expand as needed.
var RoleCapabilities = map[string][]string{
	"student": {
		CapCreateToken,
	},
	"teacher": {
		CapCreateToken,
		CapManagePoll,
		CapManageQuiz,
	},
	"admin": {
		"*", // everything
	},
}

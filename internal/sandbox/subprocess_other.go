//go:build !linux

package sandbox

// applySelfRestriction is a no-op outside Linux; wazero's own memory limit
// and FS mounts remain the enforced boundary on these platforms.
func applySelfRestriction(limits ResourceLimits) {}

package sandbox

// Permissions lists the host filesystem paths a WASM guest may see, split
// by access mode. Paths are absolute and are applied on both sides of the
// sandbox subprocess boundary: the child mounts only these directories
// into wazero's guest filesystem via FSConfig, and the host validates any
// path-shaped argument against them before ever spawning that subprocess.
type Permissions struct {
	FSReadPaths  []string `json:"fs_read_paths,omitempty"`
	FSWritePaths []string `json:"fs_write_paths,omitempty"`
}

// SkillManifest is the install-time declaration for a WASM skill: which
// trust tier it runs at, the resource envelope it's bounded by, and the
// filesystem capabilities it's granted. RegisterWasmSkill consumes one of
// these instead of a bare tier so the capability gate has something to
// enforce.
type SkillManifest struct {
	Name        string
	Tier        Tier
	Limits      ResourceLimits
	Permissions Permissions
}

package obs

import "runtime/debug"

// Version reports the module version baked into the binary, or "dev"
// when built outside a module context.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

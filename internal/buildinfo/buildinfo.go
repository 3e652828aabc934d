// Package buildinfo exposes version metadata stamped at link time via
// -ldflags "-X navtrack/internal/buildinfo.Version=...".
package buildinfo

import "runtime"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}

// Package buildinfo carries values stamped in with -ldflags "-X".
package buildinfo

import (
    "fmt"
    "runtime"
    "runtime/debug"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info returns the stamped values, falling back to VCS data embedded by the
// Go toolchain when the binary was built without ldflags.
func Info() map[string]string {
    commit := Commit
    if commit == "" {
        if bi, ok := debug.ReadBuildInfo(); ok {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" { commit = s.Value }
            }
        }
    }
    return map[string]string{
        "version": Version,
        "commit":  commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}

// String is a one-line summary for `calltrack version`.
func String() string {
    i := Info()
    s := "calltrack " + i["version"]
    if i["commit"] != "" { s += fmt.Sprintf(" (%s)", i["commit"]) }
    if i["builtAt"] != "" { s += " built " + i["builtAt"] }
    return s + " " + i["go"]
}

package virtfs

import "strings"

// AppendPath joins base and hanging with exactly one separator between them.
//
// A separator is only inserted when base does not already end with one:
//
//	AppendPath("/a/b/", "c") == "/a/b/c"
//	AppendPath("/a/b", "c")  == "/a/b/c"
//
// Leading separators of hanging are not stripped; callers pass relative
// components.
func AppendPath(base, hanging string) string {
	if strings.HasSuffix(base, "/") {
		return base + hanging
	}
	return base + "/" + hanging
}

// CanonicalPath returns the handle's canonical path: the export path alone,
// or the export path joined with the file component.
//
// Returns false when the handle carries no URL (nil or closed handle).
func (f *FS) CanonicalPath() (string, bool) {
	if f == nil || f.url == nil || f.url.Export == "" {
		return "", false
	}
	if f.url.File == "" {
		return f.url.Export, true
	}
	return AppendPath(f.url.Export, f.url.File), true
}

// resolvePath picks the stat target: the explicit path, else the URL's file
// component, else the export root.
func (f *FS) resolvePath(p string) string {
	if p != "" {
		return p
	}
	if f.url != nil {
		if fp := f.url.FilePath(); fp != "" {
			return fp
		}
	}
	return "/"
}

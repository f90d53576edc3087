package virtfs

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// URL is a parsed volume address: scheme://authority/export-path[/file]?query
//
// Authority identifies the server (host[:port] or endpoint), Export is the
// absolute export path on that server, and File is an optional trailing
// component relative to the export, used as the default stat target and as
// the file opened by OpenURI.
type URL struct {
	Scheme    string
	Authority string
	Export    string
	File      string
	Query     url.Values
}

// ParseMode selects how the path of a URL is split.
type ParseMode int

const (
	// ParseDir treats the whole path as the export path (no file component).
	ParseDir ParseMode = iota

	// ParseFull treats the last path segment as the file component and the
	// remainder as the export path.
	ParseFull
)

var (
	errMissingScheme    = errors.New("missing scheme")
	errMissingAuthority = errors.New("missing authority")
	errMissingExport    = errors.New("missing export path")
	errMissingFile      = errors.New("missing file component")
)

// ParseURL parses raw according to mode.
//
// Both authority and export path are mandatory; their absence is a parse
// error, never a partially valid URL. The export path must contain at least
// one character other than the separator.
//
// Returns:
//   - *URL: the parsed URL
//   - error: *Error of KindParse
func ParseURL(raw string, mode ParseMode) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(KindParse, "parse", raw, err)
	}
	if u.Scheme == "" || u.Opaque != "" {
		return nil, newError(KindParse, "parse", raw, errMissingScheme)
	}
	if u.Host == "" {
		return nil, newError(KindParse, "parse", raw, errMissingAuthority)
	}

	p := u.Path
	if strings.Trim(p, "/") == "" {
		return nil, newError(KindParse, "parse", raw, errMissingExport)
	}
	p = path.Clean("/" + p)

	parsed := &URL{
		Scheme:    strings.ToLower(u.Scheme),
		Authority: u.Host,
		Export:    p,
		Query:     u.Query(),
	}

	if mode == ParseFull {
		dir, file := path.Split(p)
		dir = strings.TrimSuffix(dir, "/")
		if strings.Trim(dir, "/") == "" {
			// A single segment cannot be both export and file.
			return nil, newError(KindParse, "parse", raw, errMissingFile)
		}
		parsed.Export = dir
		parsed.File = file
	}

	return parsed, nil
}

// String reassembles the URL.
func (u *URL) String() string {
	s := fmt.Sprintf("%s://%s%s", u.Scheme, u.Authority, u.Export)
	if u.File != "" {
		s = AppendPath(s, u.File)
	}
	if len(u.Query) > 0 {
		s += "?" + u.Query.Encode()
	}
	return s
}

// FilePath returns the file component as an absolute path within the
// export, or "" if the URL has no file component.
func (u *URL) FilePath() string {
	if u.File == "" {
		return ""
	}
	return AppendPath("/", u.File)
}

func (u *URL) clone() URL {
	c := *u
	if u.Query != nil {
		c.Query = url.Values{}
		for k, v := range u.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	return c
}

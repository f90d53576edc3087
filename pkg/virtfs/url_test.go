package virtfs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/virtfs/pkg/virtfs"
	"github.com/marmos91/virtfs/pkg/virtfs/virtfstest"
)

func TestAppendPath(t *testing.T) {
	assert.Equal(t, "/a/b/c", virtfs.AppendPath("/a/b/", "c"))
	assert.Equal(t, "/a/b/c", virtfs.AppendPath("/a/b", "c"))
	assert.Equal(t, "/c", virtfs.AppendPath("/", "c"))
	assert.Equal(t, "/c", virtfs.AppendPath("", "c"))
}

func TestParseURL_Dir(t *testing.T) {
	tests := []struct {
		raw       string
		authority string
		export    string
	}{
		{"mem://server/export", "server", "/export"},
		{"mem://server:2049/a/b/c", "server:2049", "/a/b/c"},
		{"MEM://server//double//slash/", "server", "/double/slash"},
		{"s3://localhost:4566/bucket/prefix?region=us-east-1", "localhost:4566", "/bucket/prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := virtfs.ParseURL(tt.raw, virtfs.ParseDir)
			require.NoError(t, err)
			assert.Equal(t, tt.authority, u.Authority)
			assert.Equal(t, tt.export, u.Export)
			assert.Empty(t, u.File)
		})
	}
}

func TestParseURL_Full(t *testing.T) {
	u, err := virtfs.ParseURL("badger://vol/exp/sub/file.txt?opt=1", virtfs.ParseFull)
	require.NoError(t, err)
	assert.Equal(t, "badger", u.Scheme)
	assert.Equal(t, "vol", u.Authority)
	assert.Equal(t, "/exp/sub", u.Export)
	assert.Equal(t, "file.txt", u.File)
	assert.Equal(t, "/file.txt", u.FilePath())
	assert.Equal(t, "1", u.Query.Get("opt"))
	assert.Equal(t, "badger://vol/exp/sub/file.txt?opt=1", u.String())
}

func TestParseURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		mode virtfs.ParseMode
	}{
		{"NoScheme", "server/export", virtfs.ParseDir},
		{"NoAuthority", "mem:///export", virtfs.ParseDir},
		{"NoPath", "mem://server", virtfs.ParseDir},
		{"RootOnly", "mem://server/", virtfs.ParseDir},
		{"SlashesOnly", "mem://server///", virtfs.ParseDir},
		{"Opaque", "mem:server/export", virtfs.ParseDir},
		{"Garbage", "mem://%zz/export", virtfs.ParseDir},
		{"FullSingleSegment", "mem://server/file", virtfs.ParseFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := virtfs.ParseURL(tt.raw, tt.mode)
			require.Error(t, err)
			assert.Nil(t, u)
			assert.True(t, errors.Is(err, virtfs.ErrParse))
		})
	}
}

func TestCanonicalPath(t *testing.T) {
	b := virtfstest.New()

	fsys, err := virtfs.New("test://host/a/b", virtfs.WithRegistry(b.Registry()))
	require.NoError(t, err)
	defer fsys.Close()

	p, ok := fsys.CanonicalPath()
	require.True(t, ok)
	assert.Equal(t, "/a/b", p)

	var nilFS *virtfs.FS
	_, ok = nilFS.CanonicalPath()
	assert.False(t, ok)
}

func TestCanonicalPath_WithFile(t *testing.T) {
	b := virtfstest.New()
	b.SetData("/f", []byte("x"), 0o644)

	file, err := virtfs.OpenURI(ctx(), "test://host/a/b/f", 0, 0, virtfs.WithRegistry(b.Registry()))
	require.NoError(t, err)
	defer file.Close()

	p, ok := file.FS().CanonicalPath()
	require.True(t, ok)
	assert.Equal(t, "/a/b/f", p)
}

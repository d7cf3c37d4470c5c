// Package locality tells whether a song's media is cached on local disk.
package locality

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Kind is a media kind with a fixed file extension
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Ext returns the cache file extension of the kind
func (k Kind) Ext() string {
	switch k {
	case KindImage:
		return "jpeg"
	case KindAudio:
		return "mp3"
	default:
		return ""
	}
}

// Prober checks the media cache laid out as <root>/<id>.<ext>.
// Nothing is cached: every call stats the filesystem, so results follow
// downloads that land while a run is in progress.
type Prober struct {
	fs   afero.Fs
	root string
}

// New creates a prober over fs; nil fs means the OS filesystem
func New(fs afero.Fs, root string) *Prober {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Prober{fs: fs, root: filepath.Clean(root)}
}

// Root returns the media root
func (p *Prober) Root() string {
	return p.root
}

// Path returns the cache path of a song's media, or "" when the id
// cannot name a file directly under the root
func (p *Prober) Path(id string, kind Kind) string {
	ext := kind.Ext()
	if ext == "" || id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return ""
	}
	return filepath.Join(p.root, id+"."+ext)
}

// Exists reports whether the media file is present as a regular file
func (p *Prober) Exists(id string, kind Kind) bool {
	path := p.Path(id, kind)
	if path == "" {
		return false
	}
	info, err := p.fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Fs returns the filesystem the prober reads
func (p *Prober) Fs() afero.Fs {
	return p.fs
}

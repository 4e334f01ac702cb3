package api

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// publicFS serves a static directory but hides dotfiles and config files,
// which hold the AuthKey and the upstream password.
type publicFS struct {
	fs http.FileSystem
}

func publicDir(dir string) http.FileSystem {
	return publicFS{fs: http.Dir(dir)}
}

func (p publicFS) Open(name string) (http.File, error) {
	if hidden(name) {
		return nil, fs.ErrNotExist
	}
	f, err := p.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return publicFile{File: f}, nil
}

// hidden reports whether any element of name is a dotfile or the last one is
// a config file.
func hidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".ini", ".env":
		return true
	}
	return false
}

// publicFile leaves hidden entries out of directory listings.
type publicFile struct {
	http.File
}

func (f publicFile) Readdir(count int) ([]fs.FileInfo, error) {
	entries, err := f.File.Readdir(count)
	visible := entries[:0]
	for _, entry := range entries {
		if !hidden(entry.Name()) {
			visible = append(visible, entry)
		}
	}
	return visible, err
}

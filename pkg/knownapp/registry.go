// Package knownapp resolves pre-built application names such as "tinker" to
// the binary for a given platform.
package knownapp

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cavaliercoder/grab"
	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceFlash/pkg/segment"
)

// Registry finds known apps under Dir/<platform>/<name>.bin. When BaseURL is
// set, apps missing locally are downloaded from BaseURL/<platform>/<name>.bin
// into Dir on first use.
type Registry struct {
	Dir     string
	BaseURL string
}

// Resolve returns the binary path for name on platform.
func (r *Registry) Resolve(platform segment.Platform, name string) (string, bool) {
	if r == nil || r.Dir == "" || !validName(name) {
		return "", false
	}

	path := r.path(platform, name)
	if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
		return path, true
	}

	if r.BaseURL == "" {
		return "", false
	}
	got, err := r.download(platform, name)
	if err != nil {
		glog.Warningf("known app %s for %s unavailable: %v", name, platform.Name, err)
		return "", false
	}
	return got, true
}

// List returns the app names available locally for platform.
func (r *Registry) List(platform segment.Platform) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.Dir, platform.Name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".bin" {
			names = append(names, strings.TrimSuffix(e.Name(), ".bin"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Registry) path(platform segment.Platform, name string) string {
	return filepath.Join(r.Dir, platform.Name, name+".bin")
}

func (r *Registry) download(platform segment.Platform, name string) (string, error) {
	dir := filepath.Join(r.Dir, platform.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/%s.bin", strings.TrimRight(r.BaseURL, "/"), platform.Name, name)
	glog.Infof("downloading %s", url)
	resp, err := grab.Get(r.path(platform, name), url)
	if err != nil {
		os.Remove(r.path(platform, name))
		return "", err
	}
	return resp.Filename, nil
}

// validName rejects anything that could escape the registry directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultSnapshotFilename = "jab.data"
	DefaultMenuFilename     = "commands.yaml"
	lockDirName             = ".fslocks"
)

// Paths are the on-disk locations derived from file_state_dir.
type Paths struct {
	StateDir string
	Snapshot string
	Menu     string
	LockDir  string
}

// FromViper resolves snapshot.file and menu.file against file_state_dir
// unless they are absolute.
func FromViper(v *viper.Viper) Paths {
	if v == nil {
		v = viper.GetViper()
	}
	dir := v.GetString("file_state_dir")
	stateDir := ResolveStateDir(dir)
	return Paths{
		StateDir: stateDir,
		Snapshot: ResolveStateFile(dir, v.GetString("snapshot.file"), DefaultSnapshotFilename),
		Menu:     ResolveStateFile(dir, v.GetString("menu.file"), DefaultMenuFilename),
		LockDir:  filepath.Join(stateDir, lockDirName),
	}
}

func ResolveStateDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "~/.jab"
	}
	return filepath.Clean(ExpandHomePath(dir))
}

func ResolveStateFile(stateDir, name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	name = ExpandHomePath(name)
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(ResolveStateDir(stateDir), name)
}

func ExpandHomePath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

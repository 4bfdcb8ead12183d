// Package hostdirs provisions home and team directories on the host
// filesystem for allocated users and groups.
package hostdirs

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Provisioner creates the on-disk directories backing an allocation.
type Provisioner interface {
	// EnsureUserHome creates the user's home directory owned by uid
	// with a private mode. Existing directories are left alone.
	EnsureUserHome(username string, uid, gid int) error
	// EnsureTeamDir creates the shared team directory owned by gid with
	// setgid so files inherit the group. Existing directories are left
	// alone.
	EnsureTeamDir(groupname string, gid int) error
}

// DirMaker provisions directories under fixed roots, typically host
// mounts like /host/home and /host/teams.
type DirMaker struct {
	HomeRoot string
	TeamRoot string

	// Chown toggles ownership changes; disabled in tests that run
	// unprivileged.
	Chown bool

	Log *zap.Logger
}

// NewDirMaker returns a provisioner rooted at homeRoot and teamRoot.
func NewDirMaker(homeRoot, teamRoot string, log *zap.Logger) *DirMaker {
	return &DirMaker{HomeRoot: homeRoot, TeamRoot: teamRoot, Chown: true, Log: log}
}

func (d *DirMaker) EnsureUserHome(username string, uid, gid int) error {
	path := filepath.Join(d.HomeRoot, username)
	created, err := d.ensure(path, 0o750, uid, gid)
	if err != nil {
		return fmt.Errorf("provisioning home for %s: %w", username, err)
	}
	if created {
		d.Log.Info("home directory created", zap.String("path", path), zap.Int("uid", uid))
	}
	// Each home gets a symlink to the shared team area.
	link := filepath.Join(path, "teams")
	if _, err := os.Lstat(link); os.IsNotExist(err) {
		if err := os.Symlink(d.TeamRoot, link); err != nil {
			return fmt.Errorf("linking teams for %s: %w", username, err)
		}
	}
	return nil
}

func (d *DirMaker) EnsureTeamDir(groupname string, gid int) error {
	path := filepath.Join(d.TeamRoot, groupname)
	// Group writable with setgid and sticky so members share files but
	// cannot delete each other's.
	created, err := d.ensure(path, 0o770|os.ModeSetgid|os.ModeSticky, 0, gid)
	if err != nil {
		return fmt.Errorf("provisioning team dir for %s: %w", groupname, err)
	}
	if created {
		d.Log.Info("team directory created", zap.String("path", path), zap.Int("gid", gid))
	}
	return nil
}

// ensure creates path with mode and ownership, reporting whether it was
// created. The parent root is created 0755 when missing.
func (d *DirMaker) ensure(path string, mode os.FileMode, uid, gid int) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.Mkdir(path, mode); err != nil {
		return false, err
	}
	// Mkdir applies the umask; restore the intended bits.
	if err := os.Chmod(path, mode); err != nil {
		return false, err
	}
	if d.Chown {
		if err := os.Chown(path, uid, gid); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Discard is a no-op provisioner for tests and dry runs.
type Discard struct{}

func (Discard) EnsureUserHome(string, int, int) error { return nil }
func (Discard) EnsureTeamDir(string, int) error       { return nil }

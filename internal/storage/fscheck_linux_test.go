//go:build linux

package storage

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestDetectFilesystemType(t *testing.T) {
	fsType, err := detectFilesystemType(t.TempDir())
	if err != nil {
		t.Fatalf("detectFilesystemType() error = %v", err)
	}
	if fsType == "" {
		t.Fatal("expected a filesystem name or magic")
	}
}

func TestStatfsNamesAreNetworkFilesystems(t *testing.T) {
	for magic, name := range statfsNames {
		if !isNetworkFilesystem(name) {
			t.Errorf("magic 0x%x maps to %q, which is not treated as remote", magic, name)
		}
	}
	for magic, want := range map[uint32]string{
		unix.NFS_SUPER_MAGIC:  "nfs",
		unix.CIFS_SUPER_MAGIC: "cifs",
		unix.SMB2_SUPER_MAGIC: "smb2",
	} {
		if got := statfsNames[magic]; got != want {
			t.Errorf("statfsNames[0x%x] = %q, want %q", magic, got, want)
		}
	}
}

// Package versioning stamps a major.minor.patch format version on every
// serialized record kind (version descriptors, DA descriptors, CT
// descriptors, B-tree nodes) through a small type registry keyed by
// resources.Resource.
package versioning

import (
	"fmt"
	"sync"

	"github.com/kvladder/ladderstore/resources"
)

type Version uint32

func NewVersion(major, minor, patch uint32) Version {
	return Version(major<<16 | minor<<8 | patch)
}

func (v Version) Major() uint32 {
	return uint32(v >> 16 & 0xff)
}

func (v Version) Minor() uint32 {
	return uint32(v >> 8 & 0xff)
}

func (v Version) Patch() uint32 {
	return uint32(v & 0xff)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

func FromString(s string) Version {
	var major, minor, patch uint32
	_, err := fmt.Sscanf(s, "%d.%d.%d", &major, &minor, &patch)
	if err != nil {
		panic(err)
	}
	return NewVersion(major, minor, patch)
}

var (
	muCurrentVersions sync.Mutex
	currentVersions   = make(map[resources.Resource]Version)
)

// Register binds the current on-disk format version for a resource kind.
// Called once per resource from the owning package's init(); registering
// the same resource twice is a programmer error and panics.
func Register(r resources.Resource, v Version) {
	muCurrentVersions.Lock()
	defer muCurrentVersions.Unlock()
	if _, exists := currentVersions[r]; exists {
		panic(fmt.Sprintf("versioning: resource %d already registered", r))
	}
	currentVersions[r] = v
}

// GetCurrentVersion returns the registered format version for a resource
// kind. Panics if the resource was never registered.
func GetCurrentVersion(r resources.Resource) Version {
	muCurrentVersions.Lock()
	defer muCurrentVersions.Unlock()
	v, exists := currentVersions[r]
	if !exists {
		panic(fmt.Sprintf("versioning: resource %d not registered", r))
	}
	return v
}

package registration

import (
	"sync"

	"github.com/chris9182/Open3D/pointcloud"
)

// SnapshotBuffer hands the latest transformed source cloud from a
// registration worker to a display thread. Writers and readers exclude each
// other; the reader always sees a complete snapshot, never a cloud that is
// still being filled.
type SnapshotBuffer struct {
	mu    sync.RWMutex
	cloud pointcloud.PointCloud
}

// Store replaces the current snapshot.
func (b *SnapshotBuffer) Store(cloud pointcloud.PointCloud) {
	b.mu.Lock()
	b.cloud = cloud
	b.mu.Unlock()
}

// Load returns the current snapshot, or nil if none has been stored yet.
func (b *SnapshotBuffer) Load() pointcloud.PointCloud {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cloud
}

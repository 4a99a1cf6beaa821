package embedding

import "hash/fnv"

// HashID folds a string graph node id into a stable unsigned 32-bit integer
// via FNV-1a. The vector store treats this as the point's primary key; the
// original string id always travels alongside it as payload so a caller
// never sees the hash, only collisions the engine silently tolerates.
func HashID(originalID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(originalID))
	return h.Sum32()
}

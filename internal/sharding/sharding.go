package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of event partitions.
const ShardCount = 1024

// GetShardID calculates the deterministic shard ID for a given key.
func GetShardID(key string) int {
	checksum := crc32.ChecksumIEEE([]byte(key))
	return int(checksum % ShardCount)
}

// ObjectShardID shards by the business object a checklist is bound to, so
// every event about one object lands on the same partition.
func ObjectShardID(objectDomain, objectID string) int {
	return GetShardID(objectDomain + "/" + objectID)
}

// EventSubject returns the NATS subject for a checklist event.
// Format: checklist.event.{shard_id}.{object_domain}.{object_id}
func EventSubject(objectDomain, objectID string) string {
	return fmt.Sprintf("checklist.event.%d.%s.%s",
		ObjectShardID(objectDomain, objectID), subjectToken(objectDomain), subjectToken(objectID))
}

// subjectToken keeps caller-supplied ids from adding subject levels or wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	out := []byte(s)
	for i, c := range out {
		switch c {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			out[i] = '_'
		}
	}
	return string(out)
}

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// envelope is the canonical form hashed for each entry. All fields are fixed
// so json.Marshal produces a stable field order; the metadata map is safe
// because encoding/json sorts map keys. Timestamps are truncated to
// microseconds before hashing so a PostgreSQL timestamptz round-trip
// reproduces the same hash.
type envelope struct {
	EntityID  string            `json:"entity_id"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Metadata  map[string]string `json:"metadata"`
	PrevHash  string            `json:"prev_hash"`
	Timestamp string            `json:"ts"`
}

// CanonicalTime normalizes a timestamp for hashing and storage.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash returns the hex SHA-256 over the canonical serialization of
// (entityID, action, actor, metadata, prevHash, timestamp).
func ComputeHash(entityID string, action Action, actor string, metadata map[string]string, prevHash string, ts time.Time) string {
	if metadata == nil {
		metadata = map[string]string{}
	}
	b, err := json.Marshal(envelope{
		EntityID:  entityID,
		Action:    string(action),
		Actor:     actor,
		Metadata:  metadata,
		PrevHash:  prevHash,
		Timestamp: CanonicalTime(ts).Format(time.RFC3339Nano),
	})
	if err != nil {
		// A map[string]string cannot fail to marshal; keep the signature clean.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Recompute returns the hash the entry's stored fields produce. Used by
// Verify to detect mutated entries.
func Recompute(e Entry) string {
	return ComputeHash(e.EntityID, e.Action, e.Actor, e.Metadata, e.PrevHash, e.Timestamp)
}

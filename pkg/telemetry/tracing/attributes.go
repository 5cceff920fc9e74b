package tracing

import "go.opentelemetry.io/otel/attribute"

// KeyValue is a span attribute.
type KeyValue = attribute.KeyValue

// Attribute keys. Keys live in the "keeper." namespace.
const (
	AttrArchiveID  = "keeper.archive.id"
	AttrEntityType = "keeper.entity_type"
	AttrJobID      = "keeper.job.id"
	AttrActor      = "keeper.actor"
	AttrRecords    = "keeper.records"
	AttrBytes      = "keeper.bytes"
	AttrDryRun     = "keeper.retention.dry_run"
	AttrDeleted    = "keeper.retention.deleted"
	AttrBlocked    = "keeper.retention.blocked"
	AttrErrorKind  = "keeper.error.kind"
)

func ArchiveID(id string) KeyValue { return attribute.String(AttrArchiveID, id) }
func EntityType(t string) KeyValue { return attribute.String(AttrEntityType, t) }
func JobID(id string) KeyValue { return attribute.String(AttrJobID, id) }
func Actor(id string) KeyValue { return attribute.String(AttrActor, id) }
func Records(n int) KeyValue { return attribute.Int(AttrRecords, n) }
func Bytes(n int64) KeyValue { return attribute.Int64(AttrBytes, n) }
func DryRun(v bool) KeyValue { return attribute.Bool(AttrDryRun, v) }
func Deleted(n int) KeyValue { return attribute.Int(AttrDeleted, n) }
func Blocked(n int) KeyValue { return attribute.Int(AttrBlocked, n) }
func ErrorKind(kind string) KeyValue { return attribute.String(AttrErrorKind, kind) }

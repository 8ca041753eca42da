package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys used across the RPC runtime, land engine, and
// config manager spans.
const (
	AttrRPCService    = "rpc.service"
	AttrRPCMethod     = "rpc.method"
	AttrRPCServerID   = "rpc.server_id"
	AttrRPCRequestID  = "rpc.request_id"
	AttrRPCCallMode   = "rpc.call_mode"
	AttrRPCRetry      = "rpc.retry_attempt"

	AttrEntityType    = "land.entity_type"
	AttrEntityID      = "land.entity_id"
	AttrLandOp        = "land.op"
	AttrLandBatchSize = "land.batch_size"
	AttrLandQueueSize = "land.queue_size"

	AttrConfigTable   = "config.table"
	AttrConfigVersion = "config.version"
	AttrConfigAtomic  = "config.atomic"
)

// RPCAttributes returns the attribute set describing an outbound or inbound RPC call.
func RPCAttributes(service, method string, serverID int64, requestID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRPCService, service),
		attribute.String(AttrRPCMethod, method),
		attribute.Int64(AttrRPCServerID, serverID),
		attribute.String(AttrRPCRequestID, requestID),
	}
}

// LandAttributes returns the attribute set describing a submitted land-engine task.
func LandAttributes(entityType, op string, entityID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEntityType, entityType),
		attribute.String(AttrLandOp, op),
		attribute.String(AttrEntityID, entityID),
	}
}

// ConfigAttributes returns the attribute set describing a config-table reload.
func ConfigAttributes(table string, version int64, atomic bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConfigTable, table),
		attribute.Int64(AttrConfigVersion, version),
		attribute.Bool(AttrConfigAtomic, atomic),
	}
}

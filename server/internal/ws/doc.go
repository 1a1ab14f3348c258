// Package ws streams evaluation records to WebSocket clients of kofn-server.
//
// The API hands every stored record to Hub.Publish; Hub.Run fans it out to
// the connected clients whose filter matches. A client picks its filter with
// the scenario and kind query parameters of /ws/stream and may replace it at
// any time by sending
//
//	{"scenario": "plant", "kind": "optimize"}
//
// Empty fields match everything. Messages sent to clients:
//
//	{"event": "snapshot",   "data": [ /* records, newest first */ ]}
//	{"event": "evaluation", "data": { /* one record */ }}
//	{"event": "error",      "data": "invalid filter: ..."}
//
// A snapshot opens every connection and follows every filter change; records
// use the schema of GET /api/v1/evaluations. A record stored while a
// snapshot is taken may arrive in both, so clients key records by id.
// Clients that fall behind are disconnected and resume from the snapshot on
// reconnect.
package ws

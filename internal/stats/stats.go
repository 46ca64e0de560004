package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// Counter fields the evaluator reads from each server entry.
const (
	fieldConnections = "server_connections"
	fieldRequests    = "requests"
	fieldTimedOut    = "server_timedout"
)

// ErrMalformed reports a stats payload that is not a JSON object.
var ErrMalformed = errors.New("stats payload is not a JSON object")

// Server holds the counters reported for one backend shard.
type Server struct {
	Connections int64
	Requests    int64 // monotonic
	TimedOut    int64 // monotonic

	// Raw keeps every counter the endpoint reported for this server, used
	// for the verbose dump and for persisting the snapshot losslessly.
	Raw map[string]any
}

// Cluster maps server identifier to its counters.
type Cluster map[string]Server

// Snapshot maps cluster (pool) name to its servers. Scalar fields the
// endpoint emits alongside the per-cluster maps (service name, uptime,
// version and the like) are not part of a Snapshot.
type Snapshot map[string]Cluster

// Decode parses the JSON document served by the stats port.
//
// The document interleaves scalar metadata with nested objects at both the
// top level and inside each cluster; only object-valued entries describe
// clusters and servers, everything else is skipped. Counters may arrive as
// numbers or numeric strings.
func Decode(data []byte) (Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode stats: %w", ErrMalformed)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("decode stats: %w", ErrMalformed)
	}

	snap := Snapshot{}
	doc.ForEach(func(name, clusterVal gjson.Result) bool {
		if !clusterVal.IsObject() {
			return true
		}
		cluster := Cluster{}
		clusterVal.ForEach(func(id, serverVal gjson.Result) bool {
			if !serverVal.IsObject() {
				return true
			}
			raw, _ := serverVal.Value().(map[string]any)
			cluster[id.String()] = Server{
				Connections: serverVal.Get(fieldConnections).Int(),
				Requests:    serverVal.Get(fieldRequests).Int(),
				TimedOut:    serverVal.Get(fieldTimedOut).Int(),
				Raw:         raw,
			}
			return true
		})
		snap[name.String()] = cluster
		return true
	})
	return snap, nil
}

// MarshalJSON writes the full raw counter map when present so a persisted
// snapshot keeps every counter the endpoint reported, not just the three
// the evaluator reads.
func (s Server) MarshalJSON() ([]byte, error) {
	if s.Raw != nil {
		return json.Marshal(s.Raw)
	}
	return json.Marshal(map[string]int64{
		fieldConnections: s.Connections,
		fieldRequests:    s.Requests,
		fieldTimedOut:    s.TimedOut,
	})
}

// ClusterNames returns the cluster names in sorted order.
func (s Snapshot) ClusterNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerIDs returns the server identifiers in sorted order.
func (c Cluster) ServerIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

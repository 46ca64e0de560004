package check

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dm/twemcheck/internal/stats"
)

// Report renders the single status line the scheduler parses.
//
// An OK run reports just the host. Anything else lists the affected
// servers followed by the counters, for example:
//
//	TWEMPROXY WARNING : 10.0.0.2:6379 disconnects=1;timeouts=0;clusters=[alpha];disconnected_shards=10.0.0.2:6379;timedout_shards=
func Report(host string, t Tally, status Status) string {
	if status == StatusOK {
		return fmt.Sprintf("TWEMPROXY OK : %s", host)
	}

	affected := stringSet{}
	for _, s := range t.DisconnectedServers {
		affected.add(s)
	}
	for _, s := range t.TimedOutServers {
		affected.add(s)
	}

	perf := strings.Join([]string{
		fmt.Sprintf("disconnects=%d", t.Disconnects),
		fmt.Sprintf("timeouts=%d", t.Timeouts),
		fmt.Sprintf("clusters=[%s]", strings.Join(t.Clusters, ",")),
		fmt.Sprintf("disconnected_shards=%s", strings.Join(t.DisconnectedServers, ",")),
		fmt.Sprintf("timedout_shards=%s", strings.Join(t.TimedOutServers, ",")),
	}, ";")

	return fmt.Sprintf("TWEMPROXY %s : %s %s", status, strings.Join(affected.sorted(), ","), perf)
}

// VerboseDump writes one line per cluster/server pair in snap with the raw
// counter map the endpoint reported, in deterministic order. Meant to
// follow the status line when the verbose flag is set.
func VerboseDump(w io.Writer, snap stats.Snapshot) {
	for _, cluster := range snap.ClusterNames() {
		servers := snap[cluster]
		for _, id := range servers.ServerIDs() {
			fmt.Fprintf(w, "%s/%s: %s\n", cluster, id, formatCounters(servers[id]))
		}
	}
}

// formatCounters renders a server's counters as key-sorted "k=v" pairs.
func formatCounters(srv stats.Server) string {
	raw := srv.Raw
	if raw == nil {
		raw = map[string]any{
			"server_connections": srv.Connections,
			"requests":           srv.Requests,
			"server_timedout":    srv.TimedOut,
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, raw[k]))
	}
	return strings.Join(parts, " ")
}

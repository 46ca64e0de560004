package check

import (
	"sort"

	"github.com/dm/twemcheck/internal/stats"
)

// Tally aggregates the problems found by one evaluation pass. Membership
// slices are sorted and de-duplicated. A Tally is built fresh each run and
// never persisted.
type Tally struct {
	Disconnects int
	Timeouts    int

	// Clusters with at least one problem of either kind.
	Clusters []string
	// Servers that failed the connectivity check.
	DisconnectedServers []string
	// Servers whose timed-out counter moved since the prior run.
	TimedOutServers []string
}

// HasProblems reports whether any disconnect or timeout was tallied.
func (t Tally) HasProblems() bool {
	return t.Disconnects > 0 || t.Timeouts > 0
}

// Evaluate compares the current snapshot against the prior run's and
// tallies disconnect and timeout events.
//
// A nil prior means the run only establishes a baseline: nothing is
// compared and the tally is empty.
//
// Per server in curr:
//   - Any movement in server_timedout since the prior run counts as a
//     timeout event, recorded independently of the connectivity state. A
//     server missing from the prior snapshot is not compared.
//   - A server with open connections is connected, whatever its deltas.
//   - A server with zero connections is a disconnect unless its request
//     counter moved forward since the prior run (a shard mid-reconnect
//     still proxies traffic).
func Evaluate(curr, prior stats.Snapshot) Tally {
	if prior == nil {
		return Tally{}
	}

	var t Tally
	clusters := stringSet{}
	disconnected := stringSet{}
	timedOut := stringSet{}

	for clusterName, servers := range curr {
		for serverID, srv := range servers {
			priorSrv, hasPrior := prior[clusterName][serverID]

			if hasPrior && srv.TimedOut-priorSrv.TimedOut != 0 {
				t.Timeouts++
				clusters.add(clusterName)
				timedOut.add(serverID)
			}

			if srv.Connections > 0 {
				continue
			}
			if hasPrior && srv.Requests-priorSrv.Requests > 0 {
				continue
			}
			t.Disconnects++
			clusters.add(clusterName)
			disconnected.add(serverID)
		}
	}

	t.Clusters = clusters.sorted()
	t.DisconnectedServers = disconnected.sorted()
	t.TimedOutServers = timedOut.sorted()
	return t
}

type stringSet map[string]struct{}

func (s stringSet) add(v string) {
	s[v] = struct{}{}
}

func (s stringSet) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Package network discovers collusion clusters: cases that reference the same
// external identifier in their network-link evidence.
package network

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
)

// Cluster is a set of cases sharing one identifier.
type Cluster struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Members []domain.Case `json:"members"`
}

// Size returns the number of member cases.
func (c Cluster) Size() int { return len(c.Members) }

// Clusters groups cases by the identifiers in their network-link evidence and
// returns every identifier shared by more than one case. Clusters appear in
// the order their identifier was first seen; members in case order. The type
// of a cluster is the type seen first. A case may belong to several clusters.
// Clusters never fails, whatever the evidence contains.
func Clusters(cases []domain.Case) []Cluster {
	type group struct {
		cluster Cluster
		seen    map[string]bool
	}

	var order []string
	groups := make(map[string]*group)

	for _, c := range cases {
		for _, ev := range c.Evidence {
			if !ev.IsNetworkLink() {
				continue
			}
			link := ingest.LinkOf(ev)

			g, ok := groups[link.Identifier]
			if !ok {
				g = &group{
					cluster: Cluster{ID: link.Identifier, Type: link.Type},
					seen:    make(map[string]bool),
				}
				groups[link.Identifier] = g
				order = append(order, link.Identifier)
			}
			if g.seen[c.ID] {
				continue
			}
			g.seen[c.ID] = true
			g.cluster.Members = append(g.cluster.Members, c)
		}
	}

	out := make([]Cluster, 0)
	for _, id := range order {
		if g := groups[id]; len(g.cluster.Members) > 1 {
			out = append(out, g.cluster)
		}
	}
	return out
}

// ClustersFor returns the clusters the given case belongs to.
func ClustersFor(cases []domain.Case, caseID string) []Cluster {
	out := make([]Cluster, 0)
	for _, cl := range Clusters(cases) {
		for _, m := range cl.Members {
			if m.ID == caseID {
				out = append(out, cl)
				break
			}
		}
	}
	return out
}

// Summary describes a cluster without embedding full member records.
type Summary struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Size      int      `json:"size"`
	MemberIDs []string `json:"memberIds"`
	Exposure  int64    `json:"exposure"`
	MaxRisk   int      `json:"maxRisk"`
}

// Summarize reduces clusters to their summaries.
func Summarize(clusters []Cluster) []Summary {
	out := make([]Summary, len(clusters))
	for i, cl := range clusters {
		s := Summary{ID: cl.ID, Type: cl.Type, Size: cl.Size(), MemberIDs: make([]string, len(cl.Members))}
		for j, m := range cl.Members {
			s.MemberIDs[j] = m.ID
			s.Exposure += m.Amount
			s.MaxRisk = max(s.MaxRisk, m.RiskScore)
		}
		out[i] = s
	}
	return out
}

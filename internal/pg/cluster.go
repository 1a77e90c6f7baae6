package pg

import (
	"sort"

	"dav/internal/fol"
)

// ClusterSet is a disjoint-set over terms. Two terms land in the same
// cluster when some unification assumption identifies them; a cluster is
// the set of terms constrained to denote the same entity in at least one
// candidate explanation.
type ClusterSet struct {
	parent map[fol.Term]fol.Term
	rank   map[fol.Term]int
}

// NewClusterSet returns an empty cluster set.
func NewClusterSet() *ClusterSet {
	return &ClusterSet{
		parent: make(map[fol.Term]fol.Term),
		rank:   make(map[fol.Term]int),
	}
}

// find returns the representative of t, adding a singleton on first sight.
func (c *ClusterSet) find(t fol.Term) fol.Term {
	p, ok := c.parent[t]
	if !ok {
		c.parent[t] = t
		return t
	}
	if p == t {
		return t
	}
	root := c.find(p)
	c.parent[t] = root
	return root
}

// Union merges the clusters of t1 and t2.
func (c *ClusterSet) Union(t1, t2 fol.Term) {
	r1, r2 := c.find(t1), c.find(t2)
	if r1 == r2 {
		return
	}
	if c.rank[r1] < c.rank[r2] {
		r1, r2 = r2, r1
	}
	c.parent[r2] = r1
	if c.rank[r1] == c.rank[r2] {
		c.rank[r1]++
	}
}

// SameCluster reports whether both terms are known and share a cluster.
func (c *ClusterSet) SameCluster(t1, t2 fol.Term) bool {
	if t1 == t2 {
		return true
	}
	if _, ok := c.parent[t1]; !ok {
		return false
	}
	if _, ok := c.parent[t2]; !ok {
		return false
	}
	return c.find(t1) == c.find(t2)
}

// ClusterOf returns the sorted members of t's cluster, or nil when t has
// never been unified with anything.
func (c *ClusterSet) ClusterOf(t fol.Term) []fol.Term {
	if _, ok := c.parent[t]; !ok {
		return nil
	}
	root := c.find(t)
	var out []fol.Term
	for member := range c.parent {
		if c.find(member) == root {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Clusters returns every cluster with two or more members, each sorted,
// ordered by their first member. Used by output rendering.
func (c *ClusterSet) Clusters() [][]fol.Term {
	byRoot := make(map[fol.Term][]fol.Term)
	for member := range c.parent {
		root := c.find(member)
		byRoot[root] = append(byRoot[root], member)
	}
	var out [][]fol.Term
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Symbol < members[j].Symbol })
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0].Symbol < out[j][0].Symbol })
	return out
}

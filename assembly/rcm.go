package assembly

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// couplingGraph links nodes that appear together in any group
func couplingGraph(n int, groups [][]int) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for _, grp := range groups {
		for a := 0; a < len(grp); a++ {
			for b := a + 1; b < len(grp); b++ {
				if grp[a] != grp[b] {
					g.SetEdge(simple.Edge{F: simple.Node(grp[a]), T: simple.Node(grp[b])})
				}
			}
		}
	}
	return g
}

// reverseCuthillMcKee returns a node order of g that reduces the bandwidth
// of its adjacency. Each connected component starts from a node of least
// degree, ties to the lowest id.
func reverseCuthillMcKee(g *simple.UndirectedGraph) (order []int) {
	degree := func(id int64) int { return g.From(id).Len() }
	byDegree := func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			di, dj := degree(nodes[i].ID()), degree(nodes[j].ID())
			if di != dj {
				return di < dj
			}
			return nodes[i].ID() < nodes[j].ID()
		})
	}
	comps := topo.ConnectedComponents(g)
	for _, c := range comps {
		byDegree(c)
	}
	sort.Slice(comps, func(i, j int) bool { return minID(comps[i]) < minID(comps[j]) })
	visited := make(map[int64]bool)
	for _, c := range comps {
		queue := []int64{c[0].ID()}
		visited[c[0].ID()] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			order = append(order, int(id))
			nbrs := graph.NodesOf(g.From(id))
			byDegree(nbrs)
			for _, nb := range nbrs {
				if !visited[nb.ID()] {
					visited[nb.ID()] = true
					queue = append(queue, nb.ID())
				}
			}
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return
}

func minID(nodes []graph.Node) int64 {
	m := nodes[0].ID()
	for _, n := range nodes[1:] {
		m = min(m, n.ID())
	}
	return m
}

package retrieval

import "github.com/nateschmiedehaus/librarian/internal/model"

// graphEdgeTypes are the edge kinds graph expansion follows outward from a
// seed candidate (§4.E.4).
var graphEdgeTypes = []model.EdgeType{
	model.EdgeDependsOn,
	model.EdgeCoChanged,
	model.EdgeReturnsSchema,
	model.EdgePartOf,
}

// graphExpansionHops bounds how many hops outward from the seed set the
// expansion follows before stopping (§4.E.4: one hop by default, two when
// depth >= L2).
func graphExpansionHops(d Depth) int {
	if d >= DepthL2 {
		return 2
	}
	return 1
}

// RunGraphExpansion walks depends_on/co_changed/returns_schema/part_of
// edges outward from the seed candidates, adding newly-discovered entities
// with a graphSimilarity score decayed by hop distance (§4.E.4).
func RunGraphExpansion(ec execContext, seeds []Candidate, source KnowledgeSource, depth Depth, tracker *Tracker) []Candidate {
	tracker.Start(StageGraphExpansion)

	merged := make(map[string]*Candidate, len(seeds))
	for i := range seeds {
		c := seeds[i]
		merged[c.Key()] = &c
	}

	frontier := make([]Candidate, len(seeds))
	copy(frontier, seeds)

	hops := graphExpansionHops(depth)
	inputCount := len(seeds)
	discovered := 0

	for hop := 1; hop <= hops; hop++ {
		decay := 1.0 / float64(hop+1)
		var next []Candidate

		for _, c := range frontier {
			for _, edgeType := range graphEdgeTypes {
				out, err := source.EdgesFrom(ec.ctx, c.EntityID, edgeType)
				if err != nil {
					continue
				}
				for _, e := range out {
					inputCount++
					key := string(e.TargetType) + ":" + e.TargetID
					neighbor, exists := merged[key]
					if !exists {
						neighbor = &Candidate{EntityType: e.TargetType, EntityID: e.TargetID, Source: "graph_expansion"}
						merged[key] = neighbor
						discovered++
						next = append(next, *neighbor)
					}
					neighbor.setScore("graphSimilarity", e.Weight*e.Confidence*decay)
				}

				in, err := source.EdgesTo(ec.ctx, c.EntityID, edgeType)
				if err != nil {
					continue
				}
				for _, e := range in {
					inputCount++
					key := string(e.SourceType) + ":" + e.SourceID
					neighbor, exists := merged[key]
					if !exists {
						neighbor = &Candidate{EntityType: e.SourceType, EntityID: e.SourceID, Source: "graph_expansion"}
						merged[key] = neighbor
						discovered++
						next = append(next, *neighbor)
					}
					neighbor.setScore("graphSimilarity", e.Weight*e.Confidence*decay)
				}
			}
		}

		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	out := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}

	tracker.Finish(StageGraphExpansion, inputCount, discovered, inputCount-discovered, map[string]interface{}{
		"hops":      hops,
		"seedCount": len(seeds),
	})
	return out
}

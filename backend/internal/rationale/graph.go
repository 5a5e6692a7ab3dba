// Package rationale projects computed pair scores into explainable
// node/edge graphs. Building a graph never recomputes or alters a score:
// the explanation format can evolve without drifting from the authoritative
// number, and the scorer stays testable with no rendering concern.
package rationale

import (
	"fmt"
	"sort"

	"resonance/backend/internal/matching"
	"resonance/backend/internal/values"
)

// NodeKind classifies a rationale graph node
type NodeKind string

const (
	NodeUser           NodeKind = "user"
	NodeValueDimension NodeKind = "value_dimension"
	NodeDataSource     NodeKind = "data_source"
)

// EdgeKind classifies a rationale graph edge
type EdgeKind string

const (
	EdgeSharedValue EdgeKind = "shared_value"
	EdgeTension     EdgeKind = "tension"
	EdgeInfluence   EdgeKind = "influence"
)

// Node is one vertex of a rationale graph
type Node struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Label string   `json:"label"`
}

// Edge is one directed edge of a rationale graph
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	Weight float64  `json:"weight"`
}

// Graph is an explanatory view of a pair score. It is built fresh per
// explanation request and never persisted as a source of truth.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func userNodeID(userID string) string     { return "user:" + userID }
func dimensionNodeID(dimID string) string { return "dimension:" + dimID }
func sourceNodeID(userID string) string   { return "source:" + userID }

// Build projects an already-computed pair score into a rationale graph:
// one node per user, one node per dimension in sharedDimensions union
// tensionDimensions, influence edges user->dimension weighted by that user's
// importance, and one shared_value/tension edge per dimension between the two
// user nodes routed through the dimension node. A data_source node per user
// records elicitation confidence for each surfaced dimension.
func Build(score *matching.PairScore, a, b *values.Profile) (*Graph, error) {
	// Align profiles with the score's canonical pair order
	if a.UserID == score.UserB && b.UserID == score.UserA {
		a, b = b, a
	}
	if a.UserID != score.UserA || b.UserID != score.UserB {
		return nil, fmt.Errorf("profiles (%s, %s) do not match pair score (%s, %s)",
			a.UserID, b.UserID, score.UserA, score.UserB)
	}

	g := &Graph{}
	g.Nodes = append(g.Nodes,
		Node{ID: userNodeID(a.UserID), Kind: NodeUser, Label: a.UserID},
		Node{ID: userNodeID(b.UserID), Kind: NodeUser, Label: b.UserID},
	)

	kinds := make(map[string]EdgeKind)
	for _, id := range score.SharedDimensions {
		kinds[id] = EdgeSharedValue
	}
	for _, id := range score.TensionDimensions {
		kinds[id] = EdgeTension
	}

	dimIDs := make([]string, 0, len(kinds))
	for id := range kinds {
		dimIDs = append(dimIDs, id)
	}
	sort.Strings(dimIDs)

	for _, id := range dimIDs {
		da := a.Dimensions[id]
		db := b.Dimensions[id]

		label := da.Name
		if label == "" {
			label = id
		}
		g.Nodes = append(g.Nodes, Node{ID: dimensionNodeID(id), Kind: NodeValueDimension, Label: label})

		// Each user's stake in the dimension
		g.Edges = append(g.Edges,
			Edge{Source: userNodeID(a.UserID), Target: dimensionNodeID(id), Kind: EdgeInfluence, Weight: da.Importance},
			Edge{Source: userNodeID(b.UserID), Target: dimensionNodeID(id), Kind: EdgeInfluence, Weight: db.Importance},
		)

		// The pair relationship, routed through the dimension node
		kind := kinds[id]
		weight := score.PerDimensionContribution[id]
		g.Edges = append(g.Edges,
			Edge{Source: userNodeID(a.UserID), Target: dimensionNodeID(id), Kind: kind, Weight: weight},
			Edge{Source: dimensionNodeID(id), Target: userNodeID(b.UserID), Kind: kind, Weight: weight},
		)
	}

	appendSourceNodes(g, a, dimIDs)
	appendSourceNodes(g, b, dimIDs)

	return g, nil
}

// appendSourceNodes adds the provenance view for one user: a data_source node
// with influence edges into each surfaced dimension, weighted by how reliably
// that dimension was elicited
func appendSourceNodes(g *Graph, p *values.Profile, dimIDs []string) {
	g.Nodes = append(g.Nodes, Node{
		ID:    sourceNodeID(p.UserID),
		Kind:  NodeDataSource,
		Label: fmt.Sprintf("declared profile v%d", p.Version),
	})
	for _, id := range dimIDs {
		d, ok := p.Dimensions[id]
		if !ok {
			continue
		}
		g.Edges = append(g.Edges, Edge{
			Source: sourceNodeID(p.UserID),
			Target: dimensionNodeID(id),
			Kind:   EdgeInfluence,
			Weight: d.Confidence,
		})
	}
}

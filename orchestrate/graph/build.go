package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Build validates def and returns the immutable Graph. Every error is a
// *FatalGraphError.
func Build(def Definition) (*Graph, error) {
	if len(def.Nodes) == 0 {
		return nil, fatal(KindEmpty, "graph has no nodes")
	}

	nodes, err := indexNodes(def.Nodes)
	if err != nil {
		return nil, err
	}
	ids := slices.Sorted(maps.Keys(nodes))

	dependents := make(map[string][]string, len(nodes))
	for _, id := range ids {
		for _, dep := range nodes[id].DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}
	for id := range dependents {
		slices.Sort(dependents[id])
	}

	order := topoOrder(ids, dependents)
	if len(order) != len(ids) {
		return nil, fatal(KindCycle, "", findCycle(ids, dependents)...)
	}

	entry, exit, err := endpoints(def, ids, nodes, dependents)
	if err != nil {
		return nil, err
	}

	groups, err := validateGroups(ids, nodes, dependents)
	if err != nil {
		return nil, err
	}

	stages, err := plan(order, nodes, groups)
	if err != nil {
		return nil, err
	}

	return &Graph{
		name:       def.Name,
		entry:      entry,
		exit:       exit,
		nodes:      nodes,
		order:      order,
		stages:     stages,
		dependents: dependents,
		groups:     groups,
	}, nil
}

func indexNodes(list []Node) (map[string]Node, error) {
	nodes := make(map[string]Node, len(list))
	for i, n := range list {
		if n.ID == "" {
			return nil, fatal(KindEmptyID, fmt.Sprintf("node at index %d", i))
		}
		if _, exists := nodes[n.ID]; exists {
			return nil, fatal(KindDuplicateNode, "", n.ID)
		}
		if n.Capability == "" {
			return nil, fatal(KindMissingCapability, "", n.ID)
		}
		if n.MaxRetries() < 0 {
			return nil, fatal(KindNegativeRetries, fmt.Sprintf("max_retries=%d", n.MaxRetries()), n.ID)
		}

		n = n.clone()
		n.DependsOn = dedupe(n.DependsOn)
		nodes[n.ID] = n
	}

	for _, id := range slices.Sorted(maps.Keys(nodes)) {
		n := nodes[id]
		for _, dep := range n.DependsOn {
			if dep == id {
				return nil, fatal(KindSelfDependency, "", id)
			}
			if _, ok := nodes[dep]; !ok {
				return nil, fatal(KindUnknownDependency, fmt.Sprintf("depends on %q", dep), id)
			}
		}
		if len(n.Outputs) > 0 {
			for _, key := range n.Fallback.Keys() {
				if !n.Declares(key) {
					return nil, fatal(KindFallbackKey, fmt.Sprintf("fallback key %q not in outputs", key), id)
				}
			}
		}
	}
	return nodes, nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func endpoints(def Definition, ids []string, nodes map[string]Node, dependents map[string][]string) (string, string, error) {
	var entries, exits []string
	for _, id := range ids {
		if len(nodes[id].DependsOn) == 0 {
			entries = append(entries, id)
		}
		if len(dependents[id]) == 0 {
			exits = append(exits, id)
		}
	}

	switch {
	case len(entries) == 0:
		return "", "", fatal(KindNoEntry, "")
	case len(entries) > 1:
		return "", "", fatal(KindMultipleEntries, "", entries...)
	case len(exits) == 0:
		return "", "", fatal(KindNoExit, "")
	case len(exits) > 1:
		return "", "", fatal(KindMultipleExits, "", exits...)
	}

	entry, exit := entries[0], exits[0]
	if def.Entry != "" && def.Entry != entry {
		return "", "", fatal(KindEntryMismatch, fmt.Sprintf("declared %q", def.Entry), entry)
	}
	if def.Exit != "" && def.Exit != exit {
		return "", "", fatal(KindExitMismatch, fmt.Sprintf("declared %q", def.Exit), exit)
	}
	return entry, exit, nil
}

func validateGroups(ids []string, nodes map[string]Node, dependents map[string][]string) (map[string][]string, error) {
	groups := make(map[string][]string)
	for _, id := range ids {
		if tag := nodes[id].Group; tag != "" {
			groups[tag] = append(groups[tag], id)
		}
	}

	for _, tag := range slices.Sorted(maps.Keys(groups)) {
		members := groups[tag]
		first := members[0]

		owners := make(map[string]string)
		for _, id := range members {
			n := nodes[id]
			for _, dep := range n.DependsOn {
				if nodes[dep].Group == tag {
					return nil, fatal(KindGroupDependency, fmt.Sprintf("group %q", tag), id, dep)
				}
			}
			if !slices.Equal(dependents[id], dependents[first]) {
				return nil, fatal(KindGroupDependents, fmt.Sprintf("group %q", tag), first, id)
			}
			if len(n.Outputs) == 0 {
				return nil, fatal(KindGroupUndeclaredOutputs, fmt.Sprintf("group %q", tag), id)
			}
			for _, key := range n.Outputs {
				if owner, taken := owners[key]; taken && owner != id {
					return nil, fatal(KindGroupOutputOverlap, fmt.Sprintf("group %q key %q", tag, key), owner, id)
				}
				owners[key] = id
			}
		}
	}
	return groups, nil
}

// plan contracts every group to a single vertex and orders the result. Ties
// are broken by the earliest member in the node order.
func plan(order []string, nodes map[string]Node, groups map[string][]string) ([]Stage, error) {
	unitOf := func(id string) string {
		if tag := nodes[id].Group; tag != "" {
			return "group:" + tag
		}
		return "node:" + id
	}

	rank := make(map[string]string)
	var units []string
	for i, id := range order {
		u := unitOf(id)
		if _, seen := rank[u]; !seen {
			rank[u] = fmt.Sprintf("%08d", i)
			units = append(units, u)
		}
	}

	// Edges are keyed by rank so the min-heap in topoOrder follows node order.
	byRank := make(map[string]string, len(units))
	rankedIDs := make([]string, 0, len(units))
	for _, u := range units {
		byRank[rank[u]] = u
		rankedIDs = append(rankedIDs, rank[u])
	}

	edgeSet := make(map[string]map[string]bool)
	for _, id := range order {
		to := rank[unitOf(id)]
		for _, dep := range nodes[id].DependsOn {
			from := rank[unitOf(dep)]
			if from == to {
				continue
			}
			if edgeSet[from] == nil {
				edgeSet[from] = make(map[string]bool)
			}
			edgeSet[from][to] = true
		}
	}
	edges := make(map[string][]string, len(edgeSet))
	for from, set := range edgeSet {
		edges[from] = slices.Sorted(maps.Keys(set))
	}

	sequence := topoOrder(rankedIDs, edges)
	if len(sequence) != len(rankedIDs) {
		path := findCycle(rankedIDs, edges)
		names := make([]string, len(path))
		for i, r := range path {
			_, name, _ := strings.Cut(byRank[r], ":")
			names[i] = name
		}
		return nil, fatal(KindGroupCycle, "groups cannot be scheduled as single stages", names...)
	}

	stages := make([]Stage, 0, len(sequence))
	for _, r := range sequence {
		kind, name, _ := strings.Cut(byRank[r], ":")
		if kind == "group" {
			stages = append(stages, Stage{Group: name, Nodes: slices.Clone(groups[name])})
			continue
		}
		stages = append(stages, Stage{Nodes: []string{name}})
	}
	return stages, nil
}

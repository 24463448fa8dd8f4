package chain

import (
	"strconv"
	"strings"
)

// BindingKind classifies a resolved named sampler binding, mirroring
// the set ResourceBinding maps a name onto per §3's ResourceBinding
// entry.
type BindingKind int

const (
	BindOriginalImage BindingKind = iota
	BindOriginalHistory
	BindSourceImage
	BindPassOutput
	BindPassFeedback
	BindAliasedOutput
	BindPresetTexture
)

// ResourceBinding is a resolved reference used to fill a pass's
// descriptor set slot, mirroring §3's ResourceBinding.
type ResourceBinding struct {
	Kind  BindingKind
	Index int    // pass/history index for BindOriginalHistory/BindPassOutput/BindPassFeedback
	Name  string // alias or texture name for BindAliasedOutput/BindPresetTexture
}

// ResolveBinding matches a shader-declared sampler name against the
// graph's passes (by index and alias) and textures: the fixed names
// Original and Source, the indexed OriginalHistoryK, PassOutputK and
// PassFeedbackK forms, aliases of earlier passes, then preset texture
// names. A name that matches none of these resolves to the pass's
// Source; it is not logged.
func ResolveBinding(name string, passIndex int, graph PresetGraph) ResourceBinding {
	switch name {
	case "Original":
		return ResourceBinding{Kind: BindOriginalImage}
	case "Source":
		return ResourceBinding{Kind: BindSourceImage}
	}

	if k, ok := parseIndexedName(name, "OriginalHistory"); ok {
		return ResourceBinding{Kind: BindOriginalHistory, Index: k}
	}
	if k, ok := parseIndexedName(name, "PassOutput"); ok {
		return ResourceBinding{Kind: BindPassOutput, Index: k}
	}
	if k, ok := parseIndexedName(name, "PassFeedback"); ok {
		return ResourceBinding{Kind: BindPassFeedback, Index: k}
	}

	for i := 0; i < passIndex && i < len(graph.Passes); i++ {
		if graph.Passes[i].Alias != "" && graph.Passes[i].Alias == name {
			return ResourceBinding{Kind: BindAliasedOutput, Name: name, Index: i}
		}
	}

	for _, tex := range graph.Textures {
		if tex.Name == name {
			return ResourceBinding{Kind: BindPresetTexture, Name: name}
		}
	}

	// Unresolved: default to the pass's own source, per §4.5 step 5.
	return ResourceBinding{Kind: BindSourceImage}
}

// parseIndexedName splits a name like "PassOutput2" into (prefix,
// trailing integer), returning ok=false if name doesn't start with
// prefix or the remainder isn't a valid non-negative integer.
func parseIndexedName(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	rest := name[len(prefix):]
	if rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MaxHistoryDepth returns the largest K referenced by any
// OriginalHistoryK binding across every pass in the graph, given each
// pass's list of declared sampler names. Returns 0 if no pass
// references OriginalHistory at all, matching "history depth equals
// the maximum K across all OriginalHistoryK bindings in the graph"
// (§4.5's History ring note) with "no references" meaning no ring is
// needed.
func MaxHistoryDepth(passSamplerNames [][]string) int {
	maxK := 0
	found := false
	for _, names := range passSamplerNames {
		for _, name := range names {
			if k, ok := parseIndexedName(name, "OriginalHistory"); ok {
				found = true
				if k > maxK {
					maxK = k
				}
			}
		}
	}
	if !found {
		return 0
	}
	return maxK
}

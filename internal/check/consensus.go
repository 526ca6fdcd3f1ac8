package check

import "dirdoctor/internal/docstore"

// missingConsensuses flags registry peers that returned no consensus.
func missingConsensuses(in *input) []finding {
	var out []finding
	for _, nick := range in.registry.Nicknames() {
		if _, ok := in.store.Consensus(nick); !ok {
			out = append(out, finding{ConsensusDownloadTimeout, nick})
		}
	}
	return out
}

func staleConsensuses(in *input) []finding {
	var out []finding
	for _, peer := range in.store.ConsensusPeers() {
		c, _ := in.store.Consensus(peer)
		if !docstore.IsFresh(c.ValidAfter, in.now, in.opts.Freshness) {
			out = append(out, finding{ConsensusNotFresh, peer})
		}
	}
	return out
}

// divergentVoteSets flags fresh consensuses that lack a dir-source some
// other fresh consensus contains.
func divergentVoteSets(in *input) []finding {
	union := make(map[string]bool)
	for _, c := range in.fresh {
		for nick := range c.DirSources {
			union[nick] = true
		}
	}

	var out []finding
	for _, peer := range in.sortedFresh() {
		c := in.fresh[peer]
		for nick := range union {
			if _, ok := c.DirSources[nick]; !ok {
				out = append(out, finding{ConsensusMissingVotes, peer})
				break
			}
		}
	}
	return out
}

// missingSignatures flags fresh consensuses not signed by all of their own
// dir-sources.
func missingSignatures(in *input) []finding {
	var out []finding
	for _, peer := range in.sortedFresh() {
		c := in.fresh[peer]
		for nick := range c.DirSources {
			if !c.Signatures[nick] {
				out = append(out, finding{ConsensusMissingSignatures, peer})
				break
			}
		}
	}
	return out
}

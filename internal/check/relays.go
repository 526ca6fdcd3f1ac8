package check

import "fmt"

// missingAuthorityFlags flags registry peers not listed with the Authority
// flag in the reference consensus.
func missingAuthorityFlags(in *input) []finding {
	flagged := make(map[string]bool)
	for _, e := range in.reference.StatusEntries {
		if e.HasFlag("Authority") {
			flagged[e.Nickname] = true
		}
	}

	var out []finding
	for _, nick := range in.registry.Nicknames() {
		if !flagged[nick] {
			out = append(out, finding{MissingAuthorities, nick})
		}
	}
	return out
}

// unexpectedFingerprints flags relays that sit on an authority's address
// and directory port but carry a different identity than configured.
func unexpectedFingerprints(in *input) []finding {
	var out []finding
	for _, e := range in.reference.StatusEntries {
		if e.DirPort == 0 {
			continue
		}
		p, ok := in.registry.ByEndpoint(e.Address, e.DirPort)
		if !ok || p.Identity == "" || p.Identity == e.Fingerprint {
			continue
		}
		out = append(out, finding{UnexpectedFingerprints, fmt.Sprintf("%s (%s)", p.Nickname, e.Fingerprint)})
	}
	return out
}

func extraAuthorities(in *input) []finding {
	var out []finding
	for _, e := range in.reference.StatusEntries {
		if e.HasFlag("Authority") && !in.registry.Contains(e.Nickname) {
			out = append(out, finding{ExtraAuthorities, e.Nickname})
		}
	}
	return out
}

// unrecommendedVersions flags authorities whose relay runs a Tor version
// older than the lowest server version the reference consensus recommends.
// Newer versions, including unlisted alphas, pass.
func unrecommendedVersions(in *input) []finding {
	lowest, ok := lowestVersion(in.reference.RecommendedServerVersions)
	if !ok {
		return nil
	}
	byFingerprint := make(map[string]string, len(in.reference.StatusEntries))
	for _, e := range in.reference.StatusEntries {
		byFingerprint[e.Fingerprint] = e.Version
	}

	var out []finding
	for _, p := range in.registry.Peers() {
		if p.Identity == "" {
			continue
		}
		version, ok := byFingerprint[p.Identity]
		if !ok || version == "" {
			continue
		}
		v, ok := parseTorVersion(version)
		if !ok || v.compare(lowest) >= 0 {
			continue
		}
		out = append(out, finding{UnrecommendedVersions, fmt.Sprintf("%s (%s)", p.Nickname, version)})
	}
	return out
}

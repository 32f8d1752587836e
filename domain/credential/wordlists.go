package credential

import "strings"

// commonWordlist and secureWordlist are the two curated word sources named
// in spec.md §4.2. original_source/ carried no files for this spec, so
// these are authored as closed, versioned lists (not sourced from any
// external corpus), matching the spec's own description of them as
// "curated wordlists" with no named source.
var commonWordlist = []string{
	"river", "mountain", "forest", "ember", "harbor", "meadow", "canyon", "glacier",
	"orchard", "lantern", "thicket", "summit", "valley", "cascade", "prairie", "tundra",
	"boulder", "horizon", "current", "timber", "granite", "willow", "cedar", "maple",
	"basin", "delta", "plateau", "ridge", "coastline", "marsh", "grove", "bayou",
	"copper", "amber", "quartz", "cobalt", "indigo", "crimson", "ochre", "slate",
	"falcon", "otter", "heron", "lynx", "badger", "sparrow", "marten", "osprey",
	"compass", "anchor", "beacon", "rudder", "sail", "tide", "harbor", "voyage",
	"ember", "kindling", "hearth", "ash", "cinder", "spark", "flint", "torch",
}

// secureWordlist skews toward longer, lower-frequency words so the
// generator's default alternating pick raises mean entropy per word.
var secureWordlist = []string{
	"obsidian", "labyrinth", "citadel", "vanguard", "palisade", "stratosphere",
	"archipelago", "cartography", "tessellate", "penumbra", "ephemeral", "monolith",
	"quicksilver", "bastion", "nebulous", "fortitude", "resilient", "tangential",
	"vermillion", "wavelength", "zephyrous", "undertow", "overlook", "crosswind",
	"driftwood", "keelhaul", "windward", "leeward", "starboard", "fathomless",
	"gyroscope", "cantilever", "tessellated", "aperture", "refraction", "luminance",
	"catalyst", "isotope", "parallax", "trajectory", "velocity", "momentum",
	"synthesis", "symmetry", "asymmetric", "chromatic", "gradient", "spectral",
}

// commonPhrases are known low-entropy phrase substrings flagged by
// scorePassphrase, per spec.md §4.2 ("absence of known common-phrase
// substrings").
var commonPhrases = []string{
	"i love you", "let me in", "open sesame", "to be or not to be",
	"the quick brown fox", "happy birthday", "correct horse battery staple",
}

// commonDictionary backs isDictionaryHit's password penalty. It is
// intentionally small and closed (dictionary-attack wordlists proper are
// out of scope for this evaluator; it exists only to penalize the most
// obvious substrings).
var commonDictionary = []string{
	"password", "dragon", "monkey", "football", "baseball", "letmein",
	"welcome", "admin", "login", "princess", "sunshine", "master", "shadow",
}

func isDictionaryHit(lowerCandidate string) bool {
	for _, w := range commonDictionary {
		if strings.Contains(lowerCandidate, w) {
			return true
		}
	}
	return false
}

func isCommonPhraseSubstring(lowerCandidate string) bool {
	for _, p := range commonPhrases {
		if strings.Contains(lowerCandidate, p) {
			return true
		}
	}
	return false
}

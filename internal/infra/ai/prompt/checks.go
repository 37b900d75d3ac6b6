package prompt

import (
	"regexp"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

// signature families that are known text-to-music generators
var generatorSignatures = []struct {
	re    *regexp.Regexp
	check string
}{
	{regexp.MustCompile(`(?i)\bsuno\b|suno[-_ ]?v\d`), "Signature matches Suno; compare vocals against the artist's earlier releases."},
	{regexp.MustCompile(`(?i)\budio\b`), "Signature matches Udio; listen for smeared transients and vocal artifacts in the choruses."},
	{regexp.MustCompile(`(?i)musicgen|audiocraft`), "Signature matches MusicGen; check whether stems or project files can be provided."},
	{regexp.MustCompile(`(?i)stable[-_ ]?audio`), "Signature matches Stable Audio; check for loop-like repetition in the arrangement."},
}

// BaselineChecks returns deterministic checks derived from the detector
// verdict. They are merged with whatever the model suggests.
func BaselineChecks(rec *scans.ScanRecord) []string {
	checks := make([]string, 0, 4)
	seen := map[string]bool{}
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			checks = append(checks, c)
		}
	}

	if rec.ModelSignature != nil {
		for _, g := range generatorSignatures {
			if g.re.MatchString(*rec.ModelSignature) {
				add(g.check)
			}
		}
	}
	if rec.AIConfidence != nil {
		switch c := *rec.AIConfidence; {
		case c >= 90:
			add("Confidence is very high; a false positive is unlikely without strong counter-evidence.")
		case c < 60:
			add("Confidence is low; treat the flag as weak and listen to the full track.")
		}
	}
	if rec.ScanStatus == scans.ScanFailed {
		add("Detector failed on this track; re-submit before deciding.")
	}
	if len(checks) == 0 {
		add("Verify the ISRC and credits match the artist's catalogue.")
	}
	return checks
}

package linkage

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

// GroundTruth is the pre-existing labeled knowledge of a linking run
type GroundTruth struct {
	// Match and Distinct are explicit [source, reference] pairs
	Match    [][2]string `json:"match"`
	Distinct [][2]string `json:"distinct"`
	// Links maps a source record ID to its known reference ID
	Links map[string]string `json:"links"`
}

// LoadGroundTruth reads a ground truth JSON document
func LoadGroundTruth(r io.Reader) (GroundTruth, error) {
	var gt GroundTruth
	if err := json.NewDecoder(r).Decode(&gt); err != nil {
		return GroundTruth{}, errors.Wrap(err, "failed to decode ground truth")
	}
	return gt, nil
}

// LoadGroundTruthFile reads a ground truth file; an empty path is an empty ground truth
func LoadGroundTruthFile(path string) (GroundTruth, error) {
	if path == "" {
		return GroundTruth{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return GroundTruth{}, errors.Wrapf(err, "failed to open ground truth %s", path)
	}
	defer f.Close()
	return LoadGroundTruth(f)
}

// WithRecordLinks adds the existing person links carried by source records
func (g GroundTruth) WithRecordLinks(records []models.SourceRecord) GroundTruth {
	links := make(map[string]string, len(g.Links))
	for k, v := range g.Links {
		links[k] = v
	}
	for _, r := range records {
		if link, ok := r.LinkFor(models.EntityTypePerson); ok {
			links[r.ID] = link.TargetID
		}
	}
	g.Links = links
	return g
}

// labeler answers whether a pair is a known match, a known non-match, or unknown
type labeler struct {
	match    map[Pair]bool
	distinct map[Pair]bool
	links    map[string]string
}

func newLabeler(g GroundTruth) labeler {
	l := labeler{
		match:    make(map[Pair]bool, len(g.Match)),
		distinct: make(map[Pair]bool, len(g.Distinct)),
		links:    g.Links,
	}
	for _, p := range g.Match {
		l.match[Pair{Source: p[0], Reference: p[1]}] = true
	}
	for _, p := range g.Distinct {
		l.distinct[Pair{Source: p[0], Reference: p[1]}] = true
	}
	return l
}

// label returns (isMatch, known). A source linked to another reference is distinct.
func (l labeler) label(p Pair) (bool, bool) {
	if l.match[p] {
		return true, true
	}
	if l.distinct[p] {
		return false, true
	}
	if target, ok := l.links[p.Source]; ok {
		return target == p.Reference, true
	}
	return false, false
}

// bootstrap returns the labeled pairs that must be trained on whether sampled or not
func (l labeler) bootstrap() []Pair {
	var out []Pair
	for p := range l.match {
		out = append(out, p)
	}
	for p := range l.distinct {
		out = append(out, p)
	}
	for src, ref := range l.links {
		out = append(out, Pair{Source: src, Reference: ref})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Reference < out[j].Reference
	})
	return out
}

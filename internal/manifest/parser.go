// Package manifest implements the Manifest Parser (spec §4.6): decoding
// the base64 DASH manifest blob, distinguishing the JSON direct-URL hint
// from the XML segment template, and rejecting preview manifests.
package manifest

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"hiflacstream/internal/domain"
)

// previewMinSegments implements the heuristic in spec §4.6: full tracks
// have >=20 segments; previews are typically ~8.
const (
	previewMinSegments = 20
	segmentDurationMs  = 4000
)

type directURLPayload struct {
	URLs []string `json:"urls"`
}

type mpd struct {
	XMLName xml.Name `xml:"MPD"`
	Periods []period `xml:"Period"`
}

type period struct {
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	Representations []representation `xml:"Representation"`
	SegmentTemplate *segmentTemplate `xml:"SegmentTemplate"`
}

type representation struct {
	SegmentTemplate *segmentTemplate `xml:"SegmentTemplate"`
}

type segmentTemplate struct {
	Initialization string           `xml:"initialization,attr"`
	Media          string           `xml:"media,attr"`
	Timeline       *segmentTimeline `xml:"SegmentTimeline"`
}

type segmentTimeline struct {
	S []segmentEntry `xml:"S"`
}

type segmentEntry struct {
	R int `xml:"r,attr"`
}

// Parse decodes a base64-encoded manifest blob. If the decoded bytes are
// JSON it returns a direct-URL hint (IsDirect()==true, no chunking path).
// Otherwise it parses the DASH XML into (init_url, media_urls) and runs
// preview detection against declaredDurationMs (0 if the caller has no
// declared duration).
func Parse(manifestB64 string, declaredDurationMs int64) (domain.ParsedManifest, error) {
	raw, err := base64.StdEncoding.DecodeString(manifestB64)
	if err != nil {
		return domain.ParsedManifest{}, fmt.Errorf("%w: base64 decode: %v", domain.ErrManifest, err)
	}

	trimmed := strings.TrimLeft(string(raw), " \t\r\n")
	if strings.HasPrefix(trimmed, "{") {
		var payload directURLPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return domain.ParsedManifest{}, fmt.Errorf("%w: json decode: %v", domain.ErrManifest, err)
		}
		if len(payload.URLs) == 0 {
			return domain.ParsedManifest{}, fmt.Errorf("%w: no urls in direct manifest", domain.ErrManifest)
		}
		return domain.ParsedManifest{DirectURLs: payload.URLs}, nil
	}

	tmpl, err := findSegmentTemplate(raw)
	if err != nil {
		return domain.ParsedManifest{}, err
	}

	n, err := tmpl.segmentCount()
	if err != nil {
		return domain.ParsedManifest{}, err
	}
	if n == 0 {
		return domain.ParsedManifest{}, fmt.Errorf("%w: no segments", domain.ErrManifest)
	}

	if isPreview(n, declaredDurationMs) {
		return domain.ParsedManifest{}, fmt.Errorf("%w: %d segments, declared duration %dms", domain.ErrPreviewManifest, n, declaredDurationMs)
	}

	initURL := decodeEntities(tmpl.Initialization)
	mediaURLs := make([]string, n)
	for i := 0; i < n; i++ {
		url := strings.ReplaceAll(tmpl.Media, "$Number$", strconv.Itoa(i+1))
		mediaURLs[i] = decodeEntities(url)
	}

	return domain.ParsedManifest{InitURL: initURL, MediaURLs: mediaURLs}, nil
}

// findSegmentTemplate scans the parsed MPD tree for the single
// SegmentTemplate carrying both an initialization and a $Number$ media
// attribute, per spec §4.6 and §6 ("Single SegmentTemplate@initialization,
// SegmentTemplate@media containing $Number$").
func findSegmentTemplate(raw []byte) (*segmentTemplate, error) {
	var doc mpd
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: xml parse: %v", domain.ErrManifest, err)
	}

	for _, p := range doc.Periods {
		for _, as := range p.AdaptationSets {
			if t := as.SegmentTemplate; t != nil && t.Initialization != "" && strings.Contains(t.Media, "$Number$") {
				return t, nil
			}
			for _, rep := range as.Representations {
				if t := rep.SegmentTemplate; t != nil && t.Initialization != "" && strings.Contains(t.Media, "$Number$") {
					return t, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: missing segment template", domain.ErrManifest)
}

// segmentCount sums 1+r over every S element in the timeline, per spec
// §4.6: "Σ (1 + r_i)".
func (t *segmentTemplate) segmentCount() (int, error) {
	if t.Timeline == nil || len(t.Timeline.S) == 0 {
		return 0, fmt.Errorf("%w: missing segment timeline", domain.ErrManifest)
	}
	total := 0
	for _, s := range t.Timeline.S {
		r := s.R
		if r < 0 {
			r = 0
		}
		total += 1 + r
	}
	return total, nil
}

// isPreview applies the heuristic in spec §4.6: N < 20, AND either no
// declared duration, or N < half the segments the declared duration
// would imply at ~4s/segment.
func isPreview(n int, declaredDurationMs int64) bool {
	if n >= previewMinSegments {
		return false
	}
	if declaredDurationMs <= 0 {
		return true
	}
	expected := declaredDurationMs / segmentDurationMs
	return int64(n) < expected/2
}

func decodeEntities(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}

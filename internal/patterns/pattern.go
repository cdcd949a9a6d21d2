package patterns

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
)

// keySeparator joins the type and category halves of a pattern key in its
// storage encoding.
const keySeparator = "::"

// Key identifies a pattern by the experience type and category it
// generalizes over.
type Key struct {
	Type     experience.Type
	Category string
}

// String returns the canonical storage encoding, "type::category".
func (k Key) String() string {
	return string(k.Type) + keySeparator + k.Category
}

// ParseKey decodes a canonical "type::category" key. The category may
// itself contain the separator; the split happens at the first occurrence.
func ParseKey(s string) (Key, error) {
	i := strings.Index(s, keySeparator)
	if i <= 0 || i+len(keySeparator) >= len(s) {
		return Key{}, fmt.Errorf("malformed pattern key %q", s)
	}
	return Key{
		Type:     experience.Type(s[:i]),
		Category: s[i+len(keySeparator):],
	}, nil
}

// Pattern is a persisted, confidence-scored generalization extracted from a
// group of same-category experiences.
//
// Confidence equals the winning experience's composite score at the most
// recent extraction. ConsecutiveSuccesses counts back-to-back extractions
// whose confidence improved on the previous one; ConsecutiveFailures counts
// back-to-back regressions. Either streak resets the other.
type Pattern struct {
	Key                  Key
	Type                 experience.Type
	Category             string
	Confidence           float64
	BestComposite        float64
	GroupMean            float64
	SampleSize           int
	Insight              string
	BestData             experience.Data
	ExtractedAt          time.Time
	FirstSeen            time.Time
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	UpdateCount          int
}

// patternDoc is the storage encoding of a Pattern; BestData is decoded per
// the pattern's type tag.
type patternDoc struct {
	Key                  string          `json:"key"`
	Type                 experience.Type `json:"type"`
	Category             string          `json:"category"`
	Confidence           float64         `json:"confidence"`
	BestComposite        float64         `json:"bestComposite"`
	GroupMean            float64         `json:"groupMean"`
	SampleSize           int             `json:"sampleSize"`
	Insight              string          `json:"insight"`
	BestData             json.RawMessage `json:"bestData,omitempty"`
	ExtractedAt          time.Time       `json:"extractedAt"`
	FirstSeen            time.Time       `json:"firstSeen"`
	ConsecutiveSuccesses int             `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int             `json:"consecutiveFailures"`
	UpdateCount          int             `json:"updateCount"`
}

// MarshalJSON implements json.Marshaler.
func (p Pattern) MarshalJSON() ([]byte, error) {
	doc := patternDoc{
		Key:                  p.Key.String(),
		Type:                 p.Type,
		Category:             p.Category,
		Confidence:           p.Confidence,
		BestComposite:        p.BestComposite,
		GroupMean:            p.GroupMean,
		SampleSize:           p.SampleSize,
		Insight:              p.Insight,
		ExtractedAt:          p.ExtractedAt,
		FirstSeen:            p.FirstSeen,
		ConsecutiveSuccesses: p.ConsecutiveSuccesses,
		ConsecutiveFailures:  p.ConsecutiveFailures,
		UpdateCount:          p.UpdateCount,
	}
	if p.BestData != nil {
		raw, err := experience.MarshalData(p.BestData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode pattern %s: %w", doc.Key, err)
		}
		doc.BestData = raw
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var doc patternDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var best experience.Data
	if len(doc.BestData) > 0 {
		var err error
		best, err = experience.UnmarshalData(doc.Type, doc.BestData)
		if err != nil {
			return fmt.Errorf("failed to decode pattern %s: %w", doc.Key, err)
		}
	}

	*p = Pattern{
		Key:                  Key{Type: doc.Type, Category: doc.Category},
		Type:                 doc.Type,
		Category:             doc.Category,
		Confidence:           doc.Confidence,
		BestComposite:        doc.BestComposite,
		GroupMean:            doc.GroupMean,
		SampleSize:           doc.SampleSize,
		Insight:              doc.Insight,
		BestData:             best,
		ExtractedAt:          doc.ExtractedAt,
		FirstSeen:            doc.FirstSeen,
		ConsecutiveSuccesses: doc.ConsecutiveSuccesses,
		ConsecutiveFailures:  doc.ConsecutiveFailures,
		UpdateCount:          doc.UpdateCount,
	}
	return nil
}

// LearningEntry is one append-only learning log record: how many
// experiences a round saw and how many patterns it extracted.
type LearningEntry struct {
	Timestamp         time.Time `json:"timestamp"`
	ExperienceCount   int       `json:"experienceCount"`
	PatternsExtracted int       `json:"patternsExtracted"`
}

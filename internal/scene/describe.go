// Package scene turns detector output into a spoken sentence.
package scene

import (
	"fmt"
	"strings"

	"vista/pkg/detect"
)

// Sentences spoken when nothing useful was found.
const (
	NothingDetected = "I couldn't detect anything. Please move the camera slowly."
	Indescribable   = "I see something but I can't describe it clearly."
)

// Bucket is the classification of one frame's labels.
type Bucket struct {
	People  int
	Animals []string
	Plants  []string
	Others  []string
}

// Empty reports whether no bucket holds anything.
func (b Bucket) Empty() bool {
	return b.People == 0 && len(b.Animals) == 0 && len(b.Plants) == 0 && len(b.Others) == 0
}

// Describer composes sentences from detections.
//
// With CountPeople unset the people clause is derived from the unique label
// set, so any number of person boxes reads as "a person". With it set every
// person box is counted.
type Describer struct {
	CountPeople bool
}

// Describe composes a sentence for one frame using the default Describer.
func Describe(dets []detect.Detection) string {
	return Describer{}.Describe(dets)
}

// Describe composes a sentence for one frame.
func (d Describer) Describe(dets []detect.Detection) string {
	if len(dets) == 0 {
		return NothingDetected
	}

	b := d.Classify(dets)
	clauses := b.Clauses()
	if len(clauses) == 0 {
		return Indescribable
	}
	return "I see " + strings.Join(clauses, " and ") + "."
}

// Classify partitions the detections into buckets.
func (d Describer) Classify(dets []detect.Detection) Bucket {
	var b Bucket
	for _, label := range UniqueLabels(dets) {
		switch {
		case label == PersonLabel:
			b.People++
		case AnimalLabels[label]:
			b.Animals = append(b.Animals, label)
		case PlantLabels[label]:
			b.Plants = append(b.Plants, label)
		case len(b.Others) < MaxOthers:
			b.Others = append(b.Others, label)
		}
	}

	if d.CountPeople {
		b.People = 0
		for _, det := range dets {
			if normalizeLabel(det.Label) == PersonLabel {
				b.People++
			}
		}
	}
	return b
}

// Clauses renders each non-empty bucket, people first.
func (b Bucket) Clauses() []string {
	var parts []string
	switch {
	case b.People == 1:
		parts = append(parts, "a person")
	case b.People > 1:
		parts = append(parts, fmt.Sprintf("%d people", b.People))
	}
	if len(b.Animals) > 0 {
		parts = append(parts, strings.Join(b.Animals, ", "))
	}
	if len(b.Plants) > 0 {
		parts = append(parts, strings.Join(b.Plants, ", "))
	}
	if len(b.Others) > 0 {
		others := b.Others
		if len(others) > MaxOthers {
			others = others[:MaxOthers]
		}
		parts = append(parts, strings.Join(others, ", "))
	}
	return parts
}

// UniqueLabels collapses duplicate labels keeping first-seen order.
// Blank labels are dropped.
func UniqueLabels(dets []detect.Detection) []string {
	seen := make(map[string]bool, len(dets))
	out := make([]string, 0, len(dets))
	for _, det := range dets {
		label := normalizeLabel(det.Label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

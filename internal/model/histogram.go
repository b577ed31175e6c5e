package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Histogram counts occurrences per category and remembers the order in which
// categories were first seen, so ties resolve the same way on every run.
type Histogram struct {
	keys   []string
	counts map[string]int
}

// HistogramEntry is one category and its count.
type HistogramEntry struct {
	Key   string
	Count int
}

// Add increments key by n. Histograms are built once and then only read.
func (h *Histogram) Add(key string, n int) {
	if h.counts == nil {
		h.counts = make(map[string]int)
	}
	if _, ok := h.counts[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.counts[key] += n
}

func (h *Histogram) Inc(key string) { h.Add(key, 1) }

// Merge adds every entry of other, in other's insertion order.
func (h *Histogram) Merge(other Histogram) {
	for _, k := range other.keys {
		h.Add(k, other.counts[k])
	}
}

func (h Histogram) Count(key string) int { return h.counts[key] }

func (h Histogram) Len() int { return len(h.keys) }

// Keys returns categories in first-seen order.
func (h Histogram) Keys() []string {
	return append([]string(nil), h.keys...)
}

// Total is the sum of all counts.
func (h Histogram) Total() int {
	total := 0
	for _, c := range h.counts {
		total += c
	}
	return total
}

// Ranked returns entries by descending count; equal counts keep first-seen order.
func (h Histogram) Ranked() []HistogramEntry {
	entries := make([]HistogramEntry, 0, len(h.keys))
	for _, k := range h.keys {
		entries = append(entries, HistogramEntry{Key: k, Count: h.counts[k]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

// Top returns the most frequent category, or fallback when empty.
func (h Histogram) Top(fallback string) string {
	ranked := h.Ranked()
	if len(ranked) == 0 {
		return fallback
	}
	return ranked[0].Key
}

// MarshalJSON writes an object whose keys follow first-seen order.
func (h Histogram) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range h.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		count, err := json.Marshal(h.counts[k])
		if err != nil {
			return nil, err
		}
		buf.Write(count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

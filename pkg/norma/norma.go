package norma

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Source identifies where a norma record was obtained from
const (
	SourceBackend = "backend"
	SourceInfoleg = "infoleg"
	SourceSAIJ    = "saij"
)

// Norma is a legal instrument (law, decree, resolution)
type Norma struct {
	ID           int64     `json:"id"`
	Type         string    `json:"tipo_norma,omitempty"`
	Number       string    `json:"numero,omitempty"`
	Title        string    `json:"titulo,omitempty"`
	Summary      string    `json:"resumen,omitempty"`
	Jurisdiction string    `json:"jurisdiccion,omitempty"`
	Agency       string    `json:"organismo,omitempty"`
	PublishedAt  time.Time `json:"fecha_publicacion,omitempty"`
	Source       string    `json:"-"`
	URL          string    `json:"url,omitempty"`
	Text         string    `json:"texto,omitempty"`
}

// DisplayName returns a short human label such as "Ley 26994"
func (n Norma) DisplayName() string {
	switch {
	case n.Type != "" && n.Number != "":
		return fmt.Sprintf("%s %s", n.Type, n.Number)
	case n.Title != "":
		return n.Title
	default:
		return fmt.Sprintf("Norma %d", n.ID)
	}
}

// HasText reports whether the full text has been loaded
func (n Norma) HasText() bool {
	return strings.TrimSpace(n.Text) != ""
}

// UniqueIDs returns the distinct ids in ascending order
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dateLayouts are the publication date formats the sources emit
var dateLayouts = []string{time.RFC3339, "2006-01-02", "02/01/2006"}

// UnmarshalJSON accepts publication dates with or without a time part
func (n *Norma) UnmarshalJSON(data []byte) error {
	type plain Norma
	aux := struct {
		*plain
		PublishedAt string `json:"fecha_publicacion,omitempty"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	n.PublishedAt = time.Time{}
	if aux.PublishedAt == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, aux.PublishedAt); err == nil {
			n.PublishedAt = t
			return nil
		}
	}
	return fmt.Errorf("norma %d: invalid fecha_publicacion %q", n.ID, aux.PublishedAt)
}

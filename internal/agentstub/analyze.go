package agentstub

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// PageSummary is what the stub reports back about a received DOM.
type PageSummary struct {
	Title    string `json:"title"`
	Elements int    `json:"elements"`
}

func summarize(html string) (PageSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageSummary{}, fmt.Errorf("parse dom: %w", err)
	}
	return PageSummary{
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Elements: doc.Find("*").Length(),
	}, nil
}

// Comparison describes how a DOM differs from the previous snapshot with the
// same name. Added and Removed count characters.
type Comparison struct {
	PreviousID string `json:"previous_id,omitempty"`
	Changed    bool   `json:"changed"`
	Added      int    `json:"added"`
	Removed    int    `json:"removed"`
}

func compare(previousID, base, head string) Comparison {
	cmp := Comparison{PreviousID: previousID}
	if previousID == "" {
		return cmp
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(base, head, true))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			cmp.Added += len(d.Text)
		case diffmatchpatch.DiffDelete:
			cmp.Removed += len(d.Text)
		}
	}
	cmp.Changed = cmp.Added > 0 || cmp.Removed > 0
	return cmp
}

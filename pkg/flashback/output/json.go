package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// document is the structure shared by the json and yaml formatters.
type document struct {
	Project pageProject        `json:"project" yaml:"project"`
	Page    pageInfo           `json:"page" yaml:"page"`
	Filter  pageFilter         `json:"filter" yaml:"filter"`
	Items   []Item             `json:"items" yaml:"items"`
	Summary *types.ScanSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
}

type pageProject struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type pageInfo struct {
	Number     int `json:"number" yaml:"number"`
	TotalPages int `json:"total_pages" yaml:"total_pages"`
	Total      int `json:"total" yaml:"total"`
}

type pageFilter struct {
	Query string   `json:"query,omitempty" yaml:"query,omitempty"`
	Types []string `json:"types,omitempty" yaml:"types,omitempty"`
}

func buildDocument(r *Result) document {
	return document{
		Project: pageProject{ID: r.Project.ID, Name: r.Project.Name},
		Page:    pageInfo{Number: r.Page.Page, TotalPages: r.Page.TotalPages, Total: r.Page.Total},
		Filter:  pageFilter{Query: r.Query, Types: r.Types},
		Items:   r.Items(),
		Summary: r.Summary,
	}
}

// JSONFormatter writes the page as one indented JSON document.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per result, for jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, item := range r.Items() {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

var _ Formatter = (*JSONLFormatter)(nil)

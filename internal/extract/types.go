// Package extract turns rendered PDF pages into structured content via a
// vision model: batch planning, model output parsing, and the batch worker.
package extract

import "fmt"

// BlockType classifies a content block. The vocabulary below is what the
// model is prompted with, but unknown values are preserved as-is so new
// model outputs never fail ingestion.
type BlockType string

const (
	BlockText         BlockType = "text"
	BlockTitle        BlockType = "title"
	BlockHeader       BlockType = "header"
	BlockSectionTitle BlockType = "section_title"
	BlockFooter       BlockType = "footer"
	BlockTable        BlockType = "table"
	BlockList         BlockType = "list"
	BlockCaption      BlockType = "caption"
	BlockFormula      BlockType = "formula"
)

// IsHeading reports whether the block is a title-like block. Heading blocks
// are mirrored into the key-value store and can receive a retrieval boost.
func (t BlockType) IsHeading() bool {
	return t == BlockTitle || t == BlockHeader || t == BlockSectionTitle
}

// Region is a coarse 3x3 page position.
type Region string

const (
	RegionTopLeft      Region = "top-left"
	RegionTopCenter    Region = "top-center"
	RegionTopRight     Region = "top-right"
	RegionMiddleLeft   Region = "middle-left"
	RegionMiddleCenter Region = "middle-center"
	RegionMiddleRight  Region = "middle-right"
	RegionBottomLeft   Region = "bottom-left"
	RegionBottomCenter Region = "bottom-center"
	RegionBottomRight  Region = "bottom-right"
	RegionFullPage     Region = "full-page"
)

// Block is a unit of extracted content at an absolute page position.
type Block struct {
	ID         string    `json:"id"`
	Type       BlockType `json:"type"`
	Page       int       `json:"page"`
	Region     Region    `json:"region,omitempty"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence,omitempty"`
}

// KeyValue is an extracted key-value pair.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Page  int    `json:"page"`
}

// Image is a description of a figure, chart, or photo on a page.
type Image struct {
	ID          string `json:"id"`
	Type        string `json:"image_type"`
	Page        int    `json:"page"`
	Region      Region `json:"region,omitempty"`
	Description string `json:"description"`
}

// PageRange is an inclusive 1-based page interval.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages returns the number of pages in the range.
func (r PageRange) Pages() int {
	return r.End - r.Start + 1
}

func (r PageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// BatchOutput is the parsed model output for one batch, with pages still
// batch-relative.
type BatchOutput struct {
	DetectedType string
	Language     string
	Blocks       []Block
	KeyValues    []KeyValue
	Images       []Image
	Summary      string
}

// Result is the merged outcome of a full extraction run.
type Result struct {
	DetectedType  string      `json:"detected_type"`
	Language      string      `json:"language"`
	Summary       string      `json:"summary"`
	Blocks        []Block     `json:"blocks"`
	KeyValues     []KeyValue  `json:"key_values"`
	Images        []Image     `json:"images"`
	BatchesTotal  int         `json:"batches_total"`
	BatchesFailed int         `json:"batches_failed"`
	FailedRanges  []PageRange `json:"failed_ranges,omitempty"`
}

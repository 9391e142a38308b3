// Package chunker splits documents into overlapping chunks for indexing.
//
// The default splitter breaks text on the largest boundary that fits
// (paragraph, line, word, character) and keeps every separator attached to
// the text that precedes it, so each chunk is an exact substring of its
// document and the chunks of one document cover it without gaps.
package chunker

// Package textdiff computes differences between two strings.
//
// Operations returns the exact longest-common-subsequence opcodes over
// runes. Clean returns a semantically cleaned-up diff meant for display:
// small fragmented edits are merged into larger readable ones, under a time
// budget that bounds the work on large inputs.
//
// Input is plain data. Markup or template delimiters such as "{{" or "{%"
// are never interpreted.
package textdiff

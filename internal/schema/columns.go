// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package schema

import "fmt"

// ColumnLetter converts a zero-based column index to its A1-style letter
// using bijective base-26: 0 -> "A", 25 -> "Z", 26 -> "AA", 701 -> "ZZ".
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var letters []byte
	num := index + 1
	for num > 0 {
		rem := (num - 1) % 26
		letters = append([]byte{byte('A' + rem)}, letters...)
		num = (num - 1) / 26
	}
	return string(letters)
}

// ColumnIndex converts an A1-style column letter back to its zero-based
// index. It is the inverse of ColumnLetter.
func ColumnIndex(letter string) (int, error) {
	if letter == "" {
		return 0, fmt.Errorf("empty column letter")
	}
	index := 0
	for i := 0; i < len(letter); i++ {
		c := letter[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", letter)
		}
		index = index*26 + int(c-'A') + 1
	}
	return index - 1, nil
}

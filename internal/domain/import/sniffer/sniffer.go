// Package sniffer classifies spreadsheet exports before normalization.
// It identifies delimiters, known column layouts and header fingerprints.
package sniffer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// delimiters in order of preference when two candidates tie.
var delimiters = []rune{';', '\t', ',', '|'}

// maxProbeLines bounds how many non-empty lines are inspected.
const maxProbeLines = 20

// DetectDelimiter picks the delimiter that splits the leading lines most
// consistently. Lines that contain none of the candidates are ignored.
func DetectDelimiter(data []byte) (rune, error) {
	if len(data) == 0 {
		return 0, ErrEmptyFile
	}

	var lines []string
	for i, line := range strings.Split(string(data), "\n") {
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == maxProbeLines {
			break
		}
	}
	if len(lines) == 0 {
		return 0, ErrEmptyFile
	}

	best := rune(0)
	bestScore := 0
	for _, d := range delimiters {
		score := consistency(lines, d)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	if best == 0 {
		return 0, ErrInvalidDelimiter
	}
	return best, nil
}

// consistency counts lines whose field count for d equals the most common
// non-zero field count, weighted by that count so wider splits win ties.
func consistency(lines []string, d rune) int {
	freq := make(map[int]int)
	for _, line := range lines {
		if n := strings.Count(line, string(d)); n > 0 {
			freq[n]++
		}
	}
	modeCount, modeLines := 0, 0
	for n, c := range freq {
		if c > modeLines || (c == modeLines && n > modeCount) {
			modeCount, modeLines = n, c
		}
	}
	return modeLines*100 + modeCount
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

// Fingerprint creates a stable hash from header names so recurring exports
// from the same bank can be recognised across uploads.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, Fold(h))
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

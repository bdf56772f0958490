package captcha

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ErrLabels is returned for a missing or malformed label file.
var ErrLabels = errors.New("invalid label set")

// LoadLabels reads a newline-delimited label file. Line i names detector
// class i.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrLabels, "opening %s: %v", path, err)
	}
	defer f.Close()
	return ReadLabels(f)
}

// ReadLabels reads labels from r, one per line. Surrounding whitespace and
// trailing blank lines are dropped.
func ReadLabels(r io.Reader) ([]string, error) {
	labels := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(ErrLabels, "reading labels: %v", err)
	}
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	if lo.Contains(labels, "") {
		return nil, errors.Wrap(ErrLabels, "blank label between entries")
	}
	return labels, nil
}

// matchingLabels splits a label set into the glyph and target names.
func matchingLabels(labels []string) (string, string, error) {
	if len(labels) != 2 {
		return "", "", errors.Wrapf(ErrLabels, "need [glyph, target], got %d labels", len(labels))
	}
	if labels[0] == labels[1] {
		return "", "", errors.Wrapf(ErrLabels, "glyph and target share the label %q", labels[0])
	}
	return labels[0], labels[1], nil
}

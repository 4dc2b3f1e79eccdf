package cromwell

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/me/choppy/pkg/model"
)

// UsernameLabel is attached to every submission.
const UsernameLabel = "username"

// SampleIDLabel tags a batch submission with its (lowercased) sample id.
const SampleIDLabel = "sample-id"

var labelKeyRe = regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)

const (
	maxLabelKey   = 63
	maxLabelValue = 255
)

// SampleLabel returns the "sample-id:<id>" label for a batch record.
func SampleLabel(sampleID string) string {
	return SampleIDLabel + ":" + strings.ToLower(sampleID)
}

// ParseLabels converts "key:value" strings into a label map. Later
// duplicates win.
func ParseLabels(kv []string) (map[string]string, error) {
	out := make(map[string]string, len(kv))
	for _, item := range kv {
		key, val, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("%q: want key:value: %w", item, model.ErrInvalidLabel)
		}
		if err := ValidateLabel(key, val); err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// ValidateLabel checks key and value against the engine's label rules.
func ValidateLabel(key, value string) error {
	if len(key) > maxLabelKey || !labelKeyRe.MatchString(key) {
		return fmt.Errorf("label key %q must match %s: %w", key, labelKeyRe, model.ErrInvalidLabel)
	}
	if len(value) > maxLabelValue {
		return fmt.Errorf("label %q value longer than %d characters: %w", key, maxLabelValue, model.ErrInvalidLabel)
	}
	return nil
}

// FormatLabels renders a label map as sorted "key:value" strings.
func FormatLabels(labels map[string]string) []string {
	out := make([]string, 0, len(labels))
	for k, v := range labels {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}

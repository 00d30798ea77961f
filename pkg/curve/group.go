package curve

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/vjranagit/runmetrics/pkg/types"
)

// ErrInvalidGroupKey is returned for an empty group-by key. A run merely
// lacking the key is not an error; it lands in the UnspecifiedGroup bucket.
var ErrInvalidGroupKey = errors.New("invalid group key")

// UnspecifiedGroup labels runs whose config lacks the group-by key.
const UnspecifiedGroup = "unspecified"

// GroupRuns partitions runs by the stringified value of one config key.
// Every run appears in exactly one group. Labels are "key=value" so overlaid
// charts and summary rows are self-describing.
func GroupRuns(runs []types.RunInfo, key string) (map[string][]string, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidGroupKey)
	}

	groups := make(map[string][]string)
	for _, run := range runs {
		value, ok := run.Config[key]
		label := UnspecifiedGroup
		if ok {
			label = key + "=" + stringifyConfigValue(value)
		}
		groups[label] = append(groups[label], run.RunID)
	}

	return groups, nil
}

// GroupLabels returns the group labels in stable sorted order, with the
// unspecified bucket last.
func GroupLabels(groups map[string][]string) []string {
	labels := make([]string, 0, len(groups))
	for label := range groups {
		if label == UnspecifiedGroup {
			continue
		}
		labels = append(labels, label)
	}
	sort.Strings(labels)
	if _, ok := groups[UnspecifiedGroup]; ok {
		labels = append(labels, UnspecifiedGroup)
	}
	return labels
}

// stringifyConfigValue renders a config scalar the way it was logged.
// JSON decoding hands numbers over as float64, so integral floats are
// printed without the trailing ".0" wandb-style exports never carry.
func stringifyConfigValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

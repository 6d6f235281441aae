package def

import "time"

// TypeCode maps a DEF header type byte to the short string key used by the
// frame-duration table.
func TypeCode(typ uint32) string {
	switch typ {
	case TypeSprite:
		return "2"
	case TypeCreature:
		return "3"
	case TypeMapObject:
		return "4"
	case TypeCursor:
		return "9"
	default:
		return ""
	}
}

// MostRepeatedFrameIndex returns the earliest index in frames whose name
// equals the name with the highest multiplicity in the group (ties broken
// by first occurrence of the winning name).
func MostRepeatedFrameIndex(frames []*Frame) int {
	counts := make(map[string]int, len(frames))
	for _, f := range frames {
		counts[f.Name]++
	}
	bestName := ""
	bestCount := -1
	for _, f := range frames {
		if counts[f.Name] > bestCount {
			bestCount = counts[f.Name]
			bestName = f.Name
		}
	}
	for i, f := range frames {
		if f.Name == bestName {
			return i
		}
	}
	return 0
}

// FrameDuration returns the playback duration for frame index i of group
// group within a DEF of the given type code (see TypeCode), following the
// exact table the source encodes implicitly across its animation-timing
// special cases. isAdvMapCreature supplies the config.Context predicate of
// the same name for type "3"'s "most repeated frame" rule.
func FrameDuration(defType string, group uint32, index int, frames []*Frame, isAdvMapCreature bool) time.Duration {
	switch {
	case defType == "9" && group == 4 && index == 5:
		return 1000 * time.Millisecond
	case defType == "9" && group == 1:
		return 125 * time.Millisecond
	case defType == "2" && group == 2 && index == 7:
		return 3000 * time.Millisecond
	case defType == "3":
		if isAdvMapCreature && index == MostRepeatedFrameIndex(frames) {
			return 1000 * time.Millisecond
		}
		return 167 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

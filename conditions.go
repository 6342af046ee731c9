package pennant

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// regexCache holds compiled patterns for the duration of one evaluation so
// a pattern referenced from several leaves compiles once.
type regexCache map[string]*regexp.Regexp

func (rc regexCache) compile(pattern string) (*regexp.Regexp, bool) {
	if re, ok := rc[pattern]; ok {
		return re, re != nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		rc[pattern] = nil
		return nil, false
	}
	rc[pattern] = re
	return re, true
}

// matchCondition evaluates a condition tree against a context. It is pure:
// no mutation of the tree or the context, no I/O.
func matchCondition(condition *Condition, context Context, rc regexCache) bool {
	if condition == nil {
		return true
	}

	switch {
	case condition.And != nil:
		for idx := range condition.And {
			if !matchCondition(&condition.And[idx], context, rc) {
				return false
			}
		}
		return true
	case condition.Or != nil:
		for idx := range condition.Or {
			if matchCondition(&condition.Or[idx], context, rc) {
				return true
			}
		}
		return false
	case condition.Not != nil:
		for idx := range condition.Not {
			if !matchCondition(&condition.Not[idx], context, rc) {
				return true
			}
		}
		return false
	}

	return matchLeaf(condition, context, rc)
}

func matchLeaf(condition *Condition, context Context, rc regexCache) bool {
	attributeValue, present := context[condition.Attribute]

	// Absence is decisive for every operator except the two existence
	// checks.
	switch condition.Operator {
	case OperatorExists:
		return present
	case OperatorNotExists:
		return !present
	}
	if !present || attributeValue == nil {
		return false
	}

	switch condition.Operator {
	case OperatorEquals:
		return valuesEqual(attributeValue, condition.Value)
	case OperatorNotEquals:
		return !valuesEqual(attributeValue, condition.Value)

	case OperatorContains:
		left, right, ok := stringPair(attributeValue, condition.Value)
		return ok && strings.Contains(left, right)
	case OperatorNotContains:
		left, right, ok := stringPair(attributeValue, condition.Value)
		return ok && !strings.Contains(left, right)
	case OperatorStartsWith:
		left, right, ok := stringPair(attributeValue, condition.Value)
		return ok && strings.HasPrefix(left, right)
	case OperatorEndsWith:
		left, right, ok := stringPair(attributeValue, condition.Value)
		return ok && strings.HasSuffix(left, right)

	case OperatorGreaterThan:
		order, ok := compareValues(attributeValue, condition.Value)
		return ok && order > 0
	case OperatorGreaterThanOrEquals:
		order, ok := compareValues(attributeValue, condition.Value)
		return ok && order >= 0
	case OperatorLessThan:
		order, ok := compareValues(attributeValue, condition.Value)
		return ok && order < 0
	case OperatorLessThanOrEquals:
		order, ok := compareValues(attributeValue, condition.Value)
		return ok && order <= 0

	case OperatorSemverEquals:
		order, ok := compareSemver(attributeValue, condition.Value)
		return ok && order == 0
	case OperatorSemverNotEquals:
		order, ok := compareSemver(attributeValue, condition.Value)
		return ok && order != 0
	case OperatorSemverGreaterThan:
		order, ok := compareSemver(attributeValue, condition.Value)
		return ok && order > 0
	case OperatorSemverGreaterThanOrEquals:
		order, ok := compareSemver(attributeValue, condition.Value)
		return ok && order >= 0
	case OperatorSemverLessThan:
		order, ok := compareSemver(attributeValue, condition.Value)
		return ok && order < 0
	case OperatorSemverLessThanOrEquals:
		order, ok := compareSemver(attributeValue, condition.Value)
		return ok && order <= 0

	case OperatorBefore:
		left, right, ok := timePair(attributeValue, condition.Value)
		return ok && left.Before(right)
	case OperatorAfter:
		left, right, ok := timePair(attributeValue, condition.Value)
		return ok && left.After(right)

	case OperatorIn:
		return valueIn(attributeValue, condition.Value)
	case OperatorNotIn:
		if !isList(condition.Value) {
			return false
		}
		return !valueIn(attributeValue, condition.Value)

	case OperatorMatches:
		left, pattern, ok := stringPair(attributeValue, condition.Value)
		if !ok {
			return false
		}
		re, ok := rc.compile(pattern)
		return ok && re.MatchString(left)
	case OperatorNotMatches:
		left, pattern, ok := stringPair(attributeValue, condition.Value)
		if !ok {
			return false
		}
		re, ok := rc.compile(pattern)
		return ok && !re.MatchString(left)
	}

	return false
}

func stringPair(left any, right any) (string, string, bool) {
	l, ok := left.(string)
	if !ok {
		return "", "", false
	}
	r, ok := right.(string)
	if !ok {
		return "", "", false
	}
	return l, r, true
}

func timePair(left any, right any) (time.Time, time.Time, bool) {
	l, ok := asTime(left)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	r, ok := asTime(right)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return l, r, true
}

// compareSemver parses both sides as semantic versions and orders them.
// Any parse failure fails the comparison.
func compareSemver(left any, right any) (int, bool) {
	leftString, rightString, ok := stringPair(left, right)
	if !ok {
		return 0, false
	}
	leftVersion, err := semver.NewVersion(leftString)
	if err != nil {
		return 0, false
	}
	rightVersion, err := semver.NewVersion(rightString)
	if err != nil {
		return 0, false
	}
	return leftVersion.Compare(rightVersion), true
}

func valueIn(value any, listValue any) bool {
	values := reflect.ValueOf(listValue)
	if !values.IsValid() {
		return false
	}
	if values.Kind() != reflect.Slice && values.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < values.Len(); i++ {
		if valuesEqual(value, values.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func isList(value any) bool {
	kind := reflect.ValueOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// matchGroupSegments resolves named segment references against the
// datafile view. A plain list is conjunctive; "*" matches everyone; an
// unknown segment key never matches.
func matchGroupSegments(group *GroupSegments, context Context, view *datafileView, rc regexCache) bool {
	if group == nil {
		return true
	}

	switch {
	case group.All:
		return true
	case group.Key != "":
		segment, ok := view.segments[group.Key]
		if !ok {
			return false
		}
		return matchCondition(segment.Conditions, context, rc)
	case group.Or != nil:
		for idx := range group.Or {
			if matchGroupSegments(&group.Or[idx], context, view, rc) {
				return true
			}
		}
		return false
	case group.Not != nil:
		for idx := range group.Not {
			if !matchGroupSegments(&group.Not[idx], context, view, rc) {
				return true
			}
		}
		return false
	default:
		for idx := range group.And {
			if !matchGroupSegments(&group.And[idx], context, view, rc) {
				return false
			}
		}
		return true
	}
}

package service

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// dateLayout is the canonical string form of date values in change items.
const dateLayout = "2006-01-02"

// FieldValue is a single named value of a snapshot.
type FieldValue struct {
	Field string
	Value interface{}
}

// Snapshot is an ordered list of field values.
type Snapshot []FieldValue

// Lookup returns the value of field when present.
func (s Snapshot) Lookup(field string) (interface{}, bool) {
	for _, fv := range s {
		if fv.Field == field {
			return fv.Value, true
		}
	}
	return nil, false
}

// Fields returns the field names in order.
func (s Snapshot) Fields() []string {
	out := make([]string, len(s))
	for i, fv := range s {
		out[i] = fv.Field
	}
	return out
}

// SnapshotFromMap converts decoded JSON into a snapshot ordered by field name.
func SnapshotFromMap(values map[string]interface{}) Snapshot {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	snapshot := make(Snapshot, 0, len(keys))
	for _, key := range keys {
		snapshot = append(snapshot, FieldValue{Field: key, Value: values[key]})
	}
	return snapshot
}

// ComputeDiff returns one item per field of next whose string form differs
// from the same field in prev. Fields missing from prev are skipped.
func ComputeDiff(prev, next Snapshot) []models.ChangeRequestItem {
	items := make([]models.ChangeRequestItem, 0)
	for _, fv := range next {
		oldValue, ok := prev.Lookup(fv.Field)
		if !ok {
			continue
		}
		oldString := stringify(oldValue)
		newString := stringify(fv.Value)
		if oldString == newString {
			continue
		}
		items = append(items, models.ChangeRequestItem{
			FieldName: fv.Field,
			OldValue:  oldString,
			NewValue:  newString,
		})
	}
	return items
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return v.String()
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(dateLayout)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		return stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(value)
}

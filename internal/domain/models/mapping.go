package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned by MapMeal when a document has no usable
// timestamp. There is no default for it.
var ErrInvalidTimestamp = errors.New("meal document has no valid timestamp")

// MapMeal converts a stored document into a Meal. Missing or unreadable
// numeric fields become 0 and a missing name becomes "". Only the timestamp
// is mandatory.
func MapMeal(doc Document) (Meal, error) {
	raw, ok := doc.Fields[FieldTimestamp]
	if !ok || raw == nil {
		return Meal{}, fmt.Errorf("document %s: %w: missing", doc.ID, ErrInvalidTimestamp)
	}

	ts, ok := raw.(time.Time)
	if !ok {
		return Meal{}, fmt.Errorf("document %s: %w: got %T", doc.ID, ErrInvalidTimestamp, raw)
	}

	name, _ := doc.Fields[FieldName].(string)

	return Meal{
		ID:        doc.ID,
		Name:      name,
		Calories:  intField(doc.Fields[FieldCalories]),
		Protein:   intField(doc.Fields[FieldProtein]),
		Carbs:     intField(doc.Fields[FieldCarbs]),
		Fat:       intField(doc.Fields[FieldFat]),
		Timestamp: ts,
	}, nil
}

// MapMeals maps every document of a snapshot, preserving order. The first
// mapping error aborts the whole snapshot.
func MapMeals(docs []Document) ([]Meal, error) {
	meals := make([]Meal, 0, len(docs))
	for _, doc := range docs {
		meal, err := MapMeal(doc)
		if err != nil {
			return nil, err
		}
		meals = append(meals, meal)
	}
	return meals, nil
}

// ParseQuantity parses a user-entered integer. Anything that is not an
// integer yields 0.
func ParseQuantity(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func intField(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case float32:
		return intField(float64(v))
	case string:
		return ParseQuantity(v)
	default:
		return 0
	}
}

package models

import (
	"fmt"
	"time"
)

// Meal is a logged meal as read back from the meal store. Meals are never
// mutated after creation, only created or deleted.
type Meal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Calories  int       `json:"calories"`
	Protein   int       `json:"protein"`
	Carbs     int       `json:"carbs"`
	Fat       int       `json:"fat"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is the raw, store-neutral shape of a stored meal record.
// Fields holds whatever the store returned; MapMeal turns it into a Meal.
type Document struct {
	ID     string
	Fields map[string]any
}

// SnapshotEvent carries the complete current result set of a live query.
// A non-nil Err is terminal: the store closes the stream right after it.
type SnapshotEvent struct {
	Documents []Document
	Err       error
}

// MealInput is what the user typed into the add-meal form.
type MealInput struct {
	Name     string `json:"name" form:"name"`
	Calories string `json:"calories" form:"calories"`
	Protein  string `json:"protein" form:"protein"`
	Carbs    string `json:"carbs" form:"carbs"`
	Fat      string `json:"fat" form:"fat"`
}

// NewMeal is a parsed meal ready to be appended to the store. The store
// stamps the timestamp itself.
type NewMeal struct {
	Name     string
	Calories int
	Protein  int
	Carbs    int
	Fat      int
}

// Parse converts the form input into a NewMeal. Numeric fields that do not
// parse as integers become 0; nothing is rejected.
func (in MealInput) Parse() NewMeal {
	return NewMeal{
		Name:     in.Name,
		Calories: ParseQuantity(in.Calories),
		Protein:  ParseQuantity(in.Protein),
		Carbs:    ParseQuantity(in.Carbs),
		Fat:      ParseQuantity(in.Fat),
	}
}

// Document field names shared by every store.
const (
	FieldUserID    = "user_id"
	FieldName      = "name"
	FieldCalories  = "calories"
	FieldProtein   = "protein"
	FieldCarbs     = "carbs"
	FieldFat       = "fat"
	FieldTimestamp = "timestamp"
)

// MealsPath returns the logical collection path of a user's meals.
func MealsPath(userID string) string {
	return fmt.Sprintf("users/%s/meals", userID)
}

// MealPath returns the logical path of a single meal document.
func MealPath(userID, mealID string) string {
	return fmt.Sprintf("%s/%s", MealsPath(userID), mealID)
}

// Identity is the signed-in user as seen by the session provider. The zero
// value means nobody is signed in.
type Identity struct {
	UserID string `json:"user_id,omitempty"`
}

// Present reports whether the identity carries a user.
func (i Identity) Present() bool {
	return i.UserID != ""
}

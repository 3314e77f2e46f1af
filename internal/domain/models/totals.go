package models

// DailyTotals is the elementwise sum of the macro fields over a meal set.
type DailyTotals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
}

// SumTotals folds the meals into their totals. An empty set yields zeros.
func SumTotals(meals []Meal) DailyTotals {
	var totals DailyTotals
	for _, m := range meals {
		totals.Calories += m.Calories
		totals.Protein += m.Protein
		totals.Carbs += m.Carbs
		totals.Fat += m.Fat
	}
	return totals
}

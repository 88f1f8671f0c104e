package model

import "strings"

// Category is a budgeting bucket assigned to a transaction.
type Category string

// Category constants.
const (
	CategoryFood          Category = "FOOD"
	CategoryCafe          Category = "CAFE"
	CategoryConvenience   Category = "CONVENIENCE"
	CategoryGrocery       Category = "GROCERY"
	CategoryTransport     Category = "TRANSPORT"
	CategoryShopping      Category = "SHOPPING"
	CategoryDelivery      Category = "DELIVERY"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategoryHealth        Category = "HEALTH"
	CategoryEducation     Category = "EDUCATION"
	CategoryUtilities     Category = "UTILITIES"
	CategoryTelecom       Category = "TELECOM"
	CategoryHousing       Category = "HOUSING"
	CategorySubscription  Category = "SUBSCRIPTION"
	CategoryAllowance     Category = "ALLOWANCE"
	CategorySalary        Category = "SALARY"
	CategoryTransfer      Category = "TRANSFER"
	CategorySavings       Category = "SAVINGS"
	CategoryOther         Category = "OTHER"
	// CategoryUncategorized is the fallback for unknown or missing stored values.
	CategoryUncategorized Category = "UNCATEGORIZED"
)

var knownCategories = map[Category]struct{}{
	CategoryFood: {}, CategoryCafe: {}, CategoryConvenience: {}, CategoryGrocery: {},
	CategoryTransport: {}, CategoryShopping: {}, CategoryDelivery: {}, CategoryEntertainment: {},
	CategoryHealth: {}, CategoryEducation: {}, CategoryUtilities: {}, CategoryTelecom: {},
	CategoryHousing: {}, CategorySubscription: {}, CategoryAllowance: {}, CategorySalary: {},
	CategoryTransfer: {}, CategorySavings: {}, CategoryOther: {}, CategoryUncategorized: {},
}

// ParseCategory converts a stored string into a Category.
// Unknown values become CategoryUncategorized.
func ParseCategory(s string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownCategories[c]; ok {
		return c
	}
	return CategoryUncategorized
}

// IsKnown reports whether c is one of the defined categories.
func (c Category) IsKnown() bool {
	_, ok := knownCategories[c]
	return ok
}

package toolexecutor

import "strings"

// ToolCategory groups tools by the business module they wrap
type ToolCategory string

const (
	CategorySales      ToolCategory = "sales"
	CategoryStock      ToolCategory = "stock"
	CategoryAccounting ToolCategory = "accounting"
	CategoryGeneral    ToolCategory = "general"
)

// AllCategories returns all valid tool categories
func AllCategories() []ToolCategory {
	return []ToolCategory{
		CategorySales,
		CategoryStock,
		CategoryAccounting,
		CategoryGeneral,
	}
}

// IsValidCategory checks if a category is valid
func IsValidCategory(category string) bool {
	cat := ToolCategory(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}

// FilterByCategory returns the definitions in a specific category
func FilterByCategory(defs []ToolDefinition, category ToolCategory) []ToolDefinition {
	filtered := []ToolDefinition{}
	for _, def := range defs {
		if def.Category == category {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

package model

// Category is the tag assigned to a notice when it is first stored.
type Category string

// Supported categories.
const (
	CategoryAcademic    Category = "academic"
	CategoryScholarship Category = "scholarship"
	CategoryRecruit     Category = "recruit"
	CategoryContest     Category = "contest"
	CategoryEvent       Category = "event"
	CategoryGeneral     Category = "general"
)

// ParseCategory maps a stored tag back to a Category, falling back to general.
func ParseCategory(s string) Category {
	switch c := Category(s); c {
	case CategoryAcademic, CategoryScholarship, CategoryRecruit, CategoryContest, CategoryEvent:
		return c
	}
	return CategoryGeneral
}

// Label returns the human-readable name shown in messages.
func (c Category) Label() string {
	switch c {
	case CategoryAcademic:
		return "학사"
	case CategoryScholarship:
		return "장학"
	case CategoryRecruit:
		return "채용"
	case CategoryContest:
		return "모집"
	case CategoryEvent:
		return "행사"
	default:
		return "일반"
	}
}

// Emoji returns the icon prefixed to messages of this category.
func (c Category) Emoji() string {
	switch c {
	case CategoryAcademic:
		return "📚"
	case CategoryScholarship:
		return "💰"
	case CategoryRecruit:
		return "💼"
	case CategoryContest:
		return "📋"
	case CategoryEvent:
		return "🎤"
	default:
		return "📢"
	}
}

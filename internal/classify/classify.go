// Package classify assigns a category to a notice based on its title.
package classify

import (
	"strings"

	"notice_bot/internal/model"
)

type rule struct {
	keywords []string
	category model.Category
}

// Order matters: a title matching several rules takes the first one.
var rules = []rule{
	{
		keywords: []string{
			"수강", "학점", "성적", "졸업", "휴학", "복학", "전과", "재입학", "수업",
			"학사일정", "교육과정", "이수", "학기", "편입", "등록금 납부", "학위",
		},
		category: model.CategoryAcademic,
	},
	{
		keywords: []string{"장학", "학자금", "등록금 감면", "국가장학", "교내장학", "근로장학"},
		category: model.CategoryScholarship,
	},
	{
		keywords: []string{
			"채용", "인사", "공무직", "계약직", "교원", "조교", "강사 채용", "직원",
			"합격자", "경쟁채용",
		},
		category: model.CategoryRecruit,
	},
	{
		keywords: []string{
			"모집", "공모", "선발", "신청 안내", "접수", "지원자", "참가자", "대회", "공모전",
		},
		category: model.CategoryContest,
	},
	{
		keywords: []string{
			"특강", "세미나", "워크숍", "설명회", "포럼", "행사", "축제", "공연", "전시", "초청",
		},
		category: model.CategoryEvent,
	},
}

// Classify returns the category of the first rule with a keyword contained in
// the lower-cased title, or general when nothing matches.
func Classify(title string) model.Category {
	t := strings.ToLower(title)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(t, kw) {
				return r.category
			}
		}
	}
	return model.CategoryGeneral
}

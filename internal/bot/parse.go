package bot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"notice_bot/internal/model"
)

// MaxKeywordLen is the longest keyword accepted, in characters.
const MaxKeywordLen = 50

var errKeywordTooLong = fmt.Errorf("⚠️ 키워드가 너무 깁니다 (최대 %d자).", MaxKeywordLen)

// ParseKeyword normalises the argument of /sub and /unsub. Inner whitespace
// is collapsed to single spaces.
func ParseKeyword(cmd, args string) (string, error) {
	kw := strings.Join(strings.Fields(args), " ")
	if kw == "" {
		return "", fmt.Errorf("⚠️ 키워드를 입력하세요.\n예: /%s 장학금", cmd)
	}
	if utf8.RuneCountInString(kw) > MaxKeywordLen {
		return "", errKeywordTooLong
	}
	return kw, nil
}

// ParseSourceKey resolves the argument of /dept and /undept against the
// configured sources. Keys match case-insensitively.
func ParseSourceKey(cmd, args string, sources []model.Source) (model.Source, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return model.Source{}, fmt.Errorf("⚠️ 학과 코드를 입력하세요.\n예: /%s cbnu_main\n/sources 로 목록을 확인하세요.", cmd)
	}
	key := fields[0]
	for _, s := range sources {
		if strings.EqualFold(s.Key, key) {
			return s, nil
		}
	}
	return model.Source{}, errors.New("❌ '" + escape(key) + "' 는 유효한 소스가 아닙니다.\n/sources 로 목록을 확인하세요.")
}

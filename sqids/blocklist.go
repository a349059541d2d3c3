package sqids

import "strings"

// minBlockedWordLength 短于 3 的词不参与过滤。
const minBlockedWordLength = 3

// filterBlocklist 预处理原始屏蔽词：丢掉过短的词、转小写、
// 丢掉含有字母表（小写后）以外字符的词。结果里的每个词都能和小写 ID 比较。
func filterBlocklist(words []string, alphabet string) []string {
	if len(words) == 0 {
		return nil
	}
	var allowed [256]bool
	lowerAlphabet := strings.ToLower(alphabet)
	for i := 0; i < len(lowerAlphabet); i++ {
		allowed[lowerAlphabet[i]] = true
	}

	filtered := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < minBlockedWordLength {
			continue
		}
		lower := strings.ToLower(word)
		ok := true
		for i := 0; i < len(lower); i++ {
			if !allowed[lower[i]] {
				ok = false
				break
			}
		}
		if ok {
			filtered = append(filtered, lower)
		}
	}
	return filtered
}

// isBlocked 判断候选 ID 是否命中屏蔽词。
//
//   - ID 或词长度 <= 3：只认完全相等（与原始 ID 比较，区分大小写）
//   - 词里带数字：只匹配小写 ID 的开头或结尾
//   - 其它：小写 ID 中任意位置出现即命中
func isBlocked(blocklist []string, id string) bool {
	if len(blocklist) == 0 {
		return false
	}
	lower := strings.ToLower(id)
	for _, word := range blocklist {
		if len(word) > len(id) {
			continue
		}
		switch {
		case len(id) <= 3 || len(word) <= 3:
			if id == word {
				return true
			}
		case containsDigit(word):
			if strings.HasPrefix(lower, word) || strings.HasSuffix(lower, word) {
				return true
			}
		case strings.Contains(lower, word):
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}

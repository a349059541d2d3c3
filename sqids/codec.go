package sqids

import "strings"

// encodeNumbers 逐次尝试生成 ID，命中屏蔽词就把 increment 加一重来。
// 每次重试都从原始打乱字母表开始，只是偏移量不同。
func (s *Sqids) encodeNumbers(numbers []uint64) (string, int, error) {
	n := len(s.shuffled)
	work := make([]byte, n)
	buf := make([]byte, 0, max(s.minLength, 2*len(numbers)+8))

	for increment := 0; ; increment++ {
		if increment > n {
			return "", increment, ErrAttemptsExhausted
		}
		id := string(s.encodeAttempt(buf[:0], work, numbers, increment))
		if !isBlocked(s.blocklist, id) {
			return id, increment, nil
		}
	}
}

// encodeAttempt 生成一个候选 ID 写入 dst。work 是长度为 n 的工作区。
func (s *Sqids) encodeAttempt(dst, work []byte, numbers []uint64, increment int) []byte {
	n := len(s.shuffled)

	// 偏移量同时取决于输入内容和重试次数
	offset := len(numbers)
	for i, v := range numbers {
		offset += i + int(s.shuffled[v%uint64(n)])
	}
	offset %= n
	offset = (offset + increment) % n

	prefix := s.shuffled[offset]
	rotateReverse(work, s.shuffled, offset)

	dst = append(dst, prefix)
	for i, v := range numbers {
		// work[0] 是分隔符，不参与数字编码
		dst = toID(dst, v, work[1:])
		if i < len(numbers)-1 {
			dst = append(dst, work[0])
			shuffle(work)
		}
	}

	if s.minLength > len(dst) {
		dst = append(dst, work[0])
		for s.minLength-len(dst) > 0 {
			shuffle(work)
			dst = append(dst, work[:min(s.minLength-len(dst), n)]...)
		}
	}
	return dst
}

func (s *Sqids) decode(id string) []uint64 {
	ret := []uint64{}
	if id == "" {
		return ret
	}
	for i := 0; i < len(id); i++ {
		if s.table.index(id[i]) == notFound {
			return ret
		}
	}

	n := len(s.shuffled)
	work := make([]byte, n)
	rotateReverse(work, s.shuffled, s.table.index(id[0]))
	table := newIndexTable(work)

	rest := id[1:]
	for rest != "" {
		chunk, tail := rest, ""
		if k := strings.IndexByte(rest, work[0]); k >= 0 {
			chunk, tail = rest[:k], rest[k+1:]
		}
		// 空块之后是补齐用的填充，直接丢弃
		if chunk == "" {
			return ret
		}
		num, ok := toNumber(chunk, table, 1, n-1)
		if !ok {
			// 溢出说明不是编码器产出的 ID
			return []uint64{}
		}
		ret = append(ret, num)
		if tail != "" {
			shuffle(work)
			table.reset(work)
		}
		rest = tail
	}
	return ret
}

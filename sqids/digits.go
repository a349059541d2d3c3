package sqids

import "math"

// notFound 标记 index 表里不存在的字节。
const notFound = -1

// indexTable 是 byte -> 位置 的查找表，替代 strings.IndexByte 的线性扫描。
type indexTable [256]int

func newIndexTable(alphabet []byte) *indexTable {
	var t indexTable
	t.reset(alphabet)
	return &t
}

// reset 按当前字母表状态重建查找表。字母表每次 shuffle 之后都要调用。
func (t *indexTable) reset(alphabet []byte) {
	for i := range t {
		t[i] = notFound
	}
	for i, c := range alphabet {
		t[c] = i
	}
}

func (t *indexTable) index(c byte) int {
	return t[c]
}

// toID 把 num 转成 alphabet 进制的符号串，高位在前，追加到 dst 后返回。
// 0 编码为 alphabet[0]。alphabet 至少要有 2 个符号。
func toID(dst []byte, num uint64, alphabet []byte) []byte {
	radix := uint64(len(alphabet))

	// uint64 在 2 进制下最多 64 位
	var buf [64]byte
	i := len(buf)
	for {
		i--
		buf[i] = alphabet[num%radix]
		num /= radix
		if num == 0 {
			break
		}
	}
	return append(dst, buf[i:]...)
}

// toNumber 是 toID 的逆运算。不在字母表中的符号直接跳过，不报错。
// 结果超出 uint64 时 ok 为 false。
//
// table 必须是按 alphabet 建好的查找表；跳过的那个分隔符（alphabet 以外的
// 第 0 位）由调用方通过 offset 排除：位置 p 的符号代表数字 p-offset。
func toNumber(id string, table *indexTable, offset, radix int) (num uint64, ok bool) {
	r := uint64(radix)
	for i := 0; i < len(id); i++ {
		p := table.index(id[i])
		if p < offset {
			continue
		}
		digit := uint64(p - offset)
		if num > (math.MaxUint64-digit)/r {
			return 0, false
		}
		num = num*r + digit
	}
	return num, true
}

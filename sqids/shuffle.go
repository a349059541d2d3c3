package sqids

// shuffle 原地打乱字母表。
//
// 纯函数：同样的输入字节序列永远得到同样的排列，没有随机源。
// 每一步的交换目标依赖当前（已部分打乱）的状态，所以顺序不能改。
func shuffle(chars []byte) {
	n := len(chars)
	for i, j := 0, n-1; j > 0; i, j = i+1, j-1 {
		r := (i*j + int(chars[i]) + int(chars[j])) % n
		chars[i], chars[r] = chars[r], chars[i]
	}
}

// Shuffle returns the deterministic permutation of alphabet used as the
// starting state of every encode and decode call. The input is not modified.
func Shuffle(alphabet string) string {
	chars := []byte(alphabet)
	shuffle(chars)
	return string(chars)
}

// rotateReverse 左移 offset 位后整体反转，写入 dst（len(dst) == len(src)）。
// 编码和解码都用它从打乱后的字母表还原出“本 ID 的编码字母表”。
func rotateReverse(dst, src []byte, offset int) {
	n := len(src)
	for k := 0; k < n; k++ {
		dst[n-1-k] = src[(offset+k)%n]
	}
}

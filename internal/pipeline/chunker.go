package pipeline

import "strings"

// 默认切块参数，单位为字符（rune）。
const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 120
)

// Chunk 按固定大小、带重叠的窗口切分文本。
// 窗口为 [start, min(start+size, n))，去除首尾空白后为空则丢弃；
// 下一窗口起点为 max(end-overlap, start+1)，窗口到达文本末尾即停止。
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	runes := []rune(text)
	n := len(runes)

	chunks := make([]string, 0, n/size+1)
	start := 0
	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == n {
			break
		}
		start = max(end-overlap, start+1)
	}
	return chunks
}

package pipeline

import "errors"

var (
	// ErrUnsupportedFormat 表示文件后缀不属于任何已注册的格式族。
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtractionFailure 表示格式受支持但内容无法解析。
	ErrExtractionFailure = errors.New("text extraction failed")
)

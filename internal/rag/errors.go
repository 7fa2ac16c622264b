package rag

import "errors"

var (
	// ErrUnsupportedProvider 表示请求的服务商未在注册表中。
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMissingCredential 表示服务商所需的凭证环境变量为空。
	ErrMissingCredential = errors.New("missing provider credential")
	// ErrGenerationFailed 表示调用模型服务失败。
	ErrGenerationFailed = errors.New("answer generation failed")
	// ErrGenerationTimeout 表示调用模型服务超时。
	ErrGenerationTimeout = errors.New("answer generation timed out")
)

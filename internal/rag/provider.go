package rag

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/pkg/llm"
)

// LookupFunc 读取一项外部配置，签名与 os.LookupEnv 相同。
type LookupFunc func(key string) (string, bool)

// ProviderRegistry 维护服务商名称到接入点与凭证变量名的映射。
// 新增服务商只需追加配置，不需要改动代码分支。
type ProviderRegistry struct {
	providers map[string]config.ProviderConfig
	lookup    LookupFunc
}

// NewProviderRegistry 根据配置构建注册表。lookup 为 nil 时读取进程环境变量。
func NewProviderRegistry(providers []config.ProviderConfig, lookup LookupFunc) *ProviderRegistry {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	m := make(map[string]config.ProviderConfig, len(providers))
	for _, p := range providers {
		m[strings.ToLower(p.Name)] = p
	}
	return &ProviderRegistry{providers: m, lookup: lookup}
}

// Names 返回已注册的服务商，按字典序排列。
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve 在调用时读取凭证并返回服务商的接入点。
func (r *ProviderRegistry) Resolve(name string) (llm.Endpoint, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return llm.Endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}

	key, _ := r.lookup(p.APIKeyEnv)
	if p.APIKeyEnv == "" || strings.TrimSpace(key) == "" {
		return llm.Endpoint{}, fmt.Errorf("%w: %s is not set for provider %s", ErrMissingCredential, p.APIKeyEnv, p.Name)
	}

	baseURL := p.BaseURL
	if p.BaseURLEnv != "" {
		if v, ok := r.lookup(p.BaseURLEnv); ok && strings.TrimSpace(v) != "" {
			baseURL = strings.TrimSpace(v)
		}
	}
	return llm.Endpoint{BaseURL: baseURL, APIKey: key}, nil
}

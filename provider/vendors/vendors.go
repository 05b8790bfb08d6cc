// Package vendors maps free-text vendor labels to concrete adapters. Vendor
// names come from admin-edited model configs, so the mapping is forgiving:
// matching is case-insensitive and accepts both localized display names and
// English aliases for the same vendor.
package vendors

import (
	"strings"

	"github.com/shotlist/shotlist/provider"
	"github.com/shotlist/shotlist/provider/dashscope"
	"github.com/shotlist/shotlist/provider/openaicompat"
	"github.com/shotlist/shotlist/provider/zhipu"
)

// New selects the adapter for a model config. Vendors with a native dialect
// get their native adapter only when the config asks for it; every other
// combination, including unknown vendors, goes through the generic
// OpenAI-compatible route.
func New(cfg provider.Config) provider.Provider {
	vendor := strings.ToLower(cfg.Vendor)

	switch {
	case isZhipu(cfg.Vendor, vendor) && cfg.UseNativeSDK:
		return zhipu.New(cfg)
	case isDashscope(cfg.Vendor, vendor) && cfg.UseNativeSDK:
		return dashscope.New(cfg)
	default:
		return openaicompat.New(cfg)
	}
}

func isZhipu(display, lower string) bool {
	return strings.Contains(display, "智谱") ||
		strings.Contains(lower, "zhipu") ||
		strings.Contains(lower, "glm")
}

func isDashscope(display, lower string) bool {
	return strings.Contains(display, "阿里云") ||
		strings.Contains(lower, "aliyun") ||
		strings.Contains(lower, "qwen") ||
		strings.Contains(lower, "dashscope")
}

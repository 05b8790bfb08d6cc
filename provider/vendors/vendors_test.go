package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shotlist/shotlist/provider"
	"github.com/shotlist/shotlist/provider/dashscope"
	"github.com/shotlist/shotlist/provider/openaicompat"
	"github.com/shotlist/shotlist/provider/zhipu"
)

func config(vendor string, native bool) provider.Config {
	return provider.Config{
		ModelID:      "m1",
		Name:         "some-model",
		Vendor:       vendor,
		APIKey:       "key",
		UseNativeSDK: native,
	}
}

func TestNew_VendorAliases(t *testing.T) {
	tests := []struct {
		vendor string
		native bool
		want   any
	}{
		{"智谱", true, &zhipu.Provider{}},
		{"Zhipu AI", true, &zhipu.Provider{}},
		{"GLM", true, &zhipu.Provider{}},
		{"阿里云", true, &dashscope.Provider{}},
		{"Aliyun", true, &dashscope.Provider{}},
		{"qwen-team", true, &dashscope.Provider{}},
		{"DashScope", true, &dashscope.Provider{}},
		{"OpenAI", true, &openaicompat.Provider{}},
		{"moonshot", false, &openaicompat.Provider{}},
		{"", false, &openaicompat.Provider{}},
	}

	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			got := New(config(tt.vendor, tt.native))
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestNew_CompatibilityModeOverridesNativeVendor(t *testing.T) {
	// A native-capable vendor configured for the OpenAI-compatible surface
	// must not get its native adapter.
	got := New(config("智谱", false))
	assert.IsType(t, &openaicompat.Provider{}, got)

	got = New(config("dashscope", false))
	assert.IsType(t, &openaicompat.Provider{}, got)
}

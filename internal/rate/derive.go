package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// DeriveKey 按 Handler 名称与其原样 Options JSON 推导限流分组键。
// 远端 Handler 按 handler+sha256(api key) 分组，无 key 时按目标主机分组；
// 其余 Handler（或解析失败时）直接以名称分组。
func DeriveKey(handler string, raw json.RawMessage) LimitKey {
	switch handler {
	case "remote", "hrm":
	default:
		return LimitKey(handler)
	}
	// 为避免跨层依赖 plugins/* 的具体类型，这里按通用 JSON 键解析。
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	pick := func(key string) string {
		if s, ok := obj[key].(string); ok {
			return s
		}
		return ""
	}
	key := pick("api_key")
	if key == "" {
		if env := pick("api_key_env"); env != "" {
			key = os.Getenv(env)
		}
	}
	if key != "" {
		sum := sha256.Sum256([]byte(key))
		return LimitKey(fmt.Sprintf("%s:%x", handler, sum[:]))
	}
	if u, err := url.Parse(pick("url")); err == nil && u.Host != "" {
		return LimitKey(handler + "@" + u.Host)
	}
	return LimitKey(handler)
}

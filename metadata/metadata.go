package metadata

import (
	"context"
	"fmt"
	"strings"
)

// MD 是一个键值对映射的元数据，每个键对应多个值。键统一为小写。
type MD map[string][]string

// New 创建一个元数据。
func New(m map[string]string) MD {
	md := make(MD, len(m))
	for key, value := range m {
		key := strings.ToLower(key)
		md[key] = append(md[key], value)
	}
	return md
}

// Pairs builds MD from alternating keys and values. It panics on an odd count.
func Pairs(kv ...string) MD {
	if len(kv)%2 == 1 {
		panic(fmt.Sprintf("metadata: Pairs got the odd number of input pairs for metadata: %d", len(kv)))
	}
	md := make(MD, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key := strings.ToLower(kv[i])
		md[key] = append(md[key], kv[i+1])
	}
	return md
}

// Get returns the values for key, which is matched case-insensitively.
func (md MD) Get(key string) []string {
	return md[strings.ToLower(key)]
}

func Join(mds ...MD) MD {
	out := MD{}
	for _, md := range mds {
		for k, v := range md {
			out[k] = append(out[k], v...)
		}
	}
	return out
}

type mdKey struct{}

// NewContext 将元数据添加到上下文中。
func NewContext(ctx context.Context, md MD) context.Context {
	return context.WithValue(ctx, mdKey{}, md)
}

// FromContext 从上下文中提取元数据。
func FromContext(ctx context.Context) (MD, bool) {
	md, ok := ctx.Value(mdKey{}).(MD)
	return md, ok
}

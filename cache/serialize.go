package cache

import (
	"fmt"

	"github.com/Tsukikage7/inventory-service/jsoncodec"
)

// serialize 字符串与字节原样保存，其他值编码为 JSON.
func serialize(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := jsoncodec.MarshalString(value)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrSerialize, err)
		}
		return data, nil
	}
}

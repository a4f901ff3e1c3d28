package util

import "unsafe"

// SliceByteToString 零拷贝转换, 调用方之后不能再修改 b
func SliceByteToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToSliceByte 零拷贝转换, 返回的切片只读
func StringToSliceByte(s string) []byte {
	if s == "" {
		return []byte{}
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

package orientation

import (
	"bytes"
	"encoding/binary"
)

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerAPP1 = 0xE1

	tagOrientation = 0x0112
	typeShort      = 3
)

var exifHeader = []byte("Exif\x00\x00")

// ExifSegment 提取 JPEG 中完整的 APP1 Exif 段（含标记与长度），没有时返回 nil
func ExifSegment(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil
	}

	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil
		}
		marker := data[pos+1]
		if marker == 0xFF {
			// 填充字节
			pos++
			continue
		}
		if marker == markerSOS {
			return nil
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		end := pos + 2 + length
		if length < 2 || end > len(data) {
			return nil
		}
		if marker == markerAPP1 && bytes.HasPrefix(data[pos+4:end], exifHeader) {
			seg := make([]byte, end-pos)
			copy(seg, data[pos:end])
			return seg
		}
		pos = end
	}
	return nil
}

// ResetOrientation 将 Exif 段 IFD0 中的 Orientation 改写为 1，返回副本
func ResetOrientation(seg []byte) []byte {
	out := make([]byte, len(seg))
	copy(out, seg)

	base := 4 + len(exifHeader)
	if len(out) < base+8 {
		return out
	}
	tiff := out[base:]

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return out
	}

	ifd := int(order.Uint32(tiff[4:8]))
	if ifd+2 > len(tiff) {
		return out
	}
	count := int(order.Uint16(tiff[ifd : ifd+2]))
	for i := 0; i < count; i++ {
		entry := ifd + 2 + i*12
		if entry+12 > len(tiff) {
			break
		}
		if order.Uint16(tiff[entry:entry+2]) == tagOrientation && order.Uint16(tiff[entry+2:entry+4]) == typeShort {
			order.PutUint16(tiff[entry+8:entry+10], uint16(Normal))
			break
		}
	}
	return out
}

// InjectExif 在 SOI 之后插入 Exif 段，并移除目标中已有的 Exif 段
func InjectExif(data, seg []byte) []byte {
	if len(seg) == 0 || len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return data
	}
	if old := ExifSegment(data); old != nil {
		if i := bytes.Index(data, old); i >= 0 {
			data = append(append([]byte{}, data[:i]...), data[i+len(old):]...)
		}
	}

	out := make([]byte, 0, len(data)+len(seg))
	out = append(out, data[:2]...)
	out = append(out, seg...)
	out = append(out, data[2:]...)
	return out
}

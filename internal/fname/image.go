package fname

import "strings"

// DefaultMediaType 是无法判断类型时的兜底 MIME。
const DefaultMediaType = "image/jpeg"

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".bmp": {}, ".tiff": {}, ".tif": {}, ".heic": {}, ".heif": {},
}

var mediaTypeToExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

var extToMediaType = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
}

// IsImageName 按扩展名（大小写不敏感）判断是否为图片文件。
func IsImageName(name string) bool {
	_, ok := imageExts[strings.ToLower(Ext(name))]
	return ok
}

// ImageExt 返回图片扩展名：优先取文件名自带的扩展名，其次按 MIME 映射，最后兜底 .jpg。
func ImageExt(name, mediaType string) string {
	if ext := Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	if ext, ok := mediaTypeToExt[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return ext
	}
	return ".jpg"
}

// MediaTypeByExt 返回扩展名对应的图片 MIME；未知扩展名返回 DefaultMediaType。
func MediaTypeByExt(ext string) string {
	if mt, ok := extToMediaType[strings.ToLower(ext)]; ok {
		return mt
	}
	return DefaultMediaType
}

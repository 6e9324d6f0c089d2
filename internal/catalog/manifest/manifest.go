// Package manifest 从本地 YAML 清单读取图片目录。
//
// 清单格式：
//
//	name: Summer Trip
//	items:
//	  - filename: a.jpg
//	    url: https://example.com/a.jpg
//	    size: 12345
//	    media_type: image/jpeg
package manifest

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/albumdl/internal/catalog"
	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/fname"
	"github.com/John-Robertt/albumdl/internal/infra/fsx"
)

var _ catalog.Provider = Provider{}
var _ catalog.AlbumNamer = Provider{}

// File 是清单文件的结构。
type File struct {
	Name  string                `yaml:"name,omitempty"`
	Items []domain.CatalogEntry `yaml:"items"`
}

// Provider 的 ref 是清单文件路径；recursive 不适用（清单本身是扁平的）。
type Provider struct{}

func (Provider) Name() string { return catalog.SourceManifest }

func (p Provider) AlbumName(ctx context.Context, ref string) (string, error) {
	f, err := Load(ref)
	if err != nil {
		return "", &catalog.Error{Provider: p.Name(), Stage: "parse", Err: err}
	}
	if strings.TrimSpace(f.Name) != "" {
		return strings.TrimSpace(f.Name), nil
	}
	base := path.Base(strings.ReplaceAll(ref, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base)), nil
}

func (p Provider) ListImages(ctx context.Context, ref string, recursive bool) ([]domain.CatalogEntry, error) {
	f, err := Load(ref)
	if err != nil {
		return nil, &catalog.Error{Provider: p.Name(), Stage: "parse", Err: err}
	}

	out := make([]domain.CatalogEntry, 0, len(f.Items))
	for _, it := range f.Items {
		it.SourceURL = strings.TrimSpace(it.SourceURL)
		if it.SourceURL == "" {
			continue
		}
		if strings.TrimSpace(it.Filename) == "" {
			it.Filename = path.Base(it.SourceURL)
		}
		if strings.TrimSpace(it.MediaType) == "" {
			it.MediaType = fname.MediaTypeByExt(fname.Ext(it.Filename))
		}
		out = append(out, it)
	}
	return out, nil
}

// Load 读取并解析清单；未知字段报错，避免拼写错误被静默忽略。
func Load(p string) (File, error) {
	fh, err := os.Open(p)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("解析清单 %q 失败：%w", p, err)
	}
	return f, nil
}

// Save 把 f 原子写入 dir/name（覆盖旧文件）。写出的文件可以直接作为 manifest 来源再次使用。
func Save(dir, name string, f File) error {
	if f.Items == nil {
		f.Items = []domain.CatalogEntry{}
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(dir, name, b)
}

package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/albumdl/internal/catalog"
	"github.com/John-Robertt/albumdl/internal/domain"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "album.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("写入清单失败：%v", err)
	}
	return p
}

func TestListImages_NormalizesAndSkipsMissingURL(t *testing.T) {
	p := writeManifest(t, `
name: Summer Trip
items:
  - filename: a.jpg
    url: https://example.com/a.jpg
    size: 10
  - url: https://example.com/path/b.png
  - filename: nourl.jpg
  - filename: c.heic
    url: " https://example.com/c "
    media_type: image/heic
`)

	got, err := Provider{}.ListImages(context.Background(), p, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 条（跳过无 url），实际 %+v", got)
	}
	if got[0].Filename != "a.jpg" || got[0].DeclaredSize != 10 || got[0].MediaType != "image/jpeg" {
		t.Fatalf("a.jpg 不正确：%+v", got[0])
	}
	if got[1].Filename != "b.png" || got[1].MediaType != "image/png" {
		t.Fatalf("缺省文件名应取 URL 最后一段：%+v", got[1])
	}
	if got[2].SourceURL != "https://example.com/c" || got[2].MediaType != "image/heic" {
		t.Fatalf("c.heic 不正确：%+v", got[2])
	}

	name, err := Provider{}.AlbumName(context.Background(), p)
	if err != nil || name != "Summer Trip" {
		t.Fatalf("期望 Summer Trip，实际 %q err=%v", name, err)
	}
}

func TestAlbumName_FallsBackToFileName(t *testing.T) {
	p := writeManifest(t, "items: []\n")
	name, err := Provider{}.AlbumName(context.Background(), p)
	if err != nil || name != "album" {
		t.Fatalf("期望 album，实际 %q err=%v", name, err)
	}
}

func TestLoad_UnknownFieldAndMissingFile(t *testing.T) {
	p := writeManifest(t, "items:\n  - filname: typo.jpg\n")
	var ce *catalog.Error
	if _, err := (Provider{}).ListImages(context.Background(), p, false); !errors.As(err, &ce) || ce.Stage != "parse" {
		t.Fatalf("未知字段期望 parse 错误，实际 %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("期望 ErrNotExist，实际 %v", err)
	}
}

func TestSave_RoundTripsThroughListImages(t *testing.T) {
	dir := t.TempDir()
	in := File{
		Name: "Snap",
		Items: []domain.CatalogEntry{
			{Filename: "a.jpg", SourceURL: "https://img.test/a.jpg", DeclaredSize: 10, MediaType: "image/jpeg"},
			{Filename: "b.png", SourceURL: "https://img.test/b.png"},
		},
	}
	if err := Save(dir, "catalog.yaml", in); err != nil {
		t.Fatalf("Save 失败：%v", err)
	}

	p := filepath.Join(dir, "catalog.yaml")
	name, err := Provider{}.AlbumName(context.Background(), p)
	if err != nil || name != "Snap" {
		t.Fatalf("期望 Snap，实际 %q err=%v", name, err)
	}
	got, err := Provider{}.ListImages(context.Background(), p, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 || got[0] != in.Items[0] || got[1].MediaType != "image/png" {
		t.Fatalf("往返结果不正确：%+v", got)
	}
}

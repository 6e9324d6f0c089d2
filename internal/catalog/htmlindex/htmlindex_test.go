package htmlindex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/John-Robertt/albumdl/internal/catalog"
)

func newIndexServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/gallery/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gallery/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><title> Summer  Trip </title></head><body>
			<a href="../">Parent</a>
			<a href="a.jpg">a.jpg</a>
			<a href="/gallery/a.jpg">dup</a>
			<img src="thumbs/b%20c.PNG">
			<a href="notes.txt">notes</a>
			<a href="sub/">sub/</a>
			<a href="https://other.example/x/">offsite</a>
			<a href="#top">top</a>
			<a href="mailto:x@y">mail</a>
		</body></html>`))
	})
	mux.HandleFunc("/gallery/sub/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="../">up</a><a href="d.webp">d</a><a href="/gallery/">loop</a>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListImages_Flat(t *testing.T) {
	srv := newIndexServer(t)
	p := Provider{Client: srv.Client()}

	got, err := p.ListImages(context.Background(), srv.URL+"/gallery/", false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 条（去重后），实际 %+v", got)
	}
	if got[0].Filename != "a.jpg" || got[0].SourceURL != srv.URL+"/gallery/a.jpg" || got[0].MediaType != "image/jpeg" {
		t.Fatalf("a.jpg 不正确：%+v", got[0])
	}
	if got[1].Filename != "b c.PNG" || got[1].MediaType != "image/png" {
		t.Fatalf("img src 应被收集且文件名已解码：%+v", got[1])
	}
}

func TestListImages_RecursiveFollowsSubdirsOnly(t *testing.T) {
	srv := newIndexServer(t)
	p := Provider{Client: srv.Client()}

	got, err := p.ListImages(context.Background(), srv.URL+"/gallery/", true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 条，实际 %+v", got)
	}
	if got[2].Filename != "sub/d.webp" {
		t.Fatalf("子目录文件应带前缀：%+v", got[2])
	}
}

func TestIsSubdir(t *testing.T) {
	page, _ := url.Parse("http://h/gallery/index.html")
	cases := []struct {
		raw  string
		want bool
	}{
		{"http://h/gallery/sub/", true},
		{"http://h/gallery/", false},
		{"http://h/", false},
		{"http://h/gallery/file.jpg", false},
		{"http://other/gallery/sub/", false},
	}
	for _, c := range cases {
		u, _ := url.Parse(c.raw)
		if got := isSubdir(page, u); got != c.want {
			t.Fatalf("isSubdir(%q)：期望 %v，实际 %v", c.raw, c.want, got)
		}
	}
}

func TestAlbumName_FromTitle(t *testing.T) {
	srv := newIndexServer(t)
	name, err := Provider{Client: srv.Client()}.AlbumName(context.Background(), srv.URL+"/gallery/")
	if err != nil || name != "Summer Trip" {
		t.Fatalf("期望 Summer Trip，实际 %q err=%v", name, err)
	}
}

func TestListImages_BadRefAndNotFound(t *testing.T) {
	srv := newIndexServer(t)
	p := Provider{Client: srv.Client()}

	var ce *catalog.Error
	if _, err := p.ListImages(context.Background(), "not a url", false); !errors.As(err, &ce) || ce.Stage != "resolve" {
		t.Fatalf("期望 resolve 阶段错误，实际 %v", err)
	}
	if _, err := p.ListImages(context.Background(), srv.URL+"/missing/", false); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("期望 ErrNotFound，实际 %v", err)
	}
}

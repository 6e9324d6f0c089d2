package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/albumdl/internal/catalog"
)

const shareRef = "https://1drv.ms/a/s!AbCdEf"

func TestEncodeSharingURL(t *testing.T) {
	cases := map[string]string{
		"https://1drv.ms/a/s!AbCdEf":            "u!aHR0cHM6Ly8xZHJ2Lm1zL2EvcyFBYkNkRWY",
		"https://onedrive.live.com/?id=1&cid=2": "u!aHR0cHM6Ly9vbmVkcml2ZS5saXZlLmNvbS8_aWQ9MSZjaWQ9Mg",
	}
	for in, want := range cases {
		if got := EncodeSharingURL(in); got != want {
			t.Fatalf("EncodeSharingURL(%q)：期望 %q，实际 %q", in, want, got)
		}
	}
}

func TestValidateShareURL(t *testing.T) {
	for _, ok := range []string{shareRef, "https://onedrive.live.com/redir?resid=1", "http://ONEDRIVE.com/x"} {
		if err := ValidateShareURL(ok); err != nil {
			t.Fatalf("%q 应合法：%v", ok, err)
		}
	}
	for _, bad := range []string{"https://example.com/a", "ftp://1drv.ms/x", "1drv.ms/a", "https://evil1drv.ms/"} {
		if err := ValidateShareURL(bad); !errors.Is(err, ErrInvalidShareURL) {
			t.Fatalf("%q 应返回 ErrInvalidShareURL，实际 %v", bad, err)
		}
	}
}

func newGraphServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	enc := EncodeSharingURL(shareRef)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/shares/" + enc + "/driveItem":
			_, _ = w.Write([]byte(`{"id":"root","name":"Trip 2024","folder":{"childCount":3}}`))
		case "/shares/" + enc + "/driveItem/children":
			_, _ = w.Write([]byte(`{
				"value": [
					{"id":"1","name":"a.jpg","size":10,"image":{},"file":{"mimeType":"image/jpeg"},"@microsoft.graph.downloadUrl":"https://dl/a"},
					{"id":"2","name":"doc.pdf","size":5,"file":{"mimeType":"application/pdf"},"@microsoft.graph.downloadUrl":"https://dl/doc"},
					{"id":"f1","name":"sub","folder":{"childCount":1},"parentReference":{"driveId":"d1"}},
					{"id":"3","name":"nourl.jpg","image":{}}
				],
				"@odata.nextLink": "` + srv.URL + `/page2"
			}`))
		case "/page2":
			_, _ = w.Write([]byte(`{"value":[{"id":"4","name":"b.PNG","size":20,"file":{"mimeType":"image/png"},"@microsoft.graph.downloadUrl":"https://dl/b"}]}`))
		case "/drives/d1/items/f1/children":
			_, _ = w.Write([]byte(`{"value":[{"id":"5","name":"c.heic","size":30,"@microsoft.graph.downloadUrl":"https://dl/c"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestListImages_FlatWithPagination(t *testing.T) {
	srv, _ := newGraphServer(t)
	p := Provider{BaseURL: srv.URL, Client: srv.Client()}

	got, err := p.ListImages(context.Background(), shareRef, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 条图片，实际 %d：%+v", len(got), got)
	}
	if got[0].Filename != "a.jpg" || got[0].SourceURL != "https://dl/a" || got[0].DeclaredSize != 10 || got[0].MediaType != "image/jpeg" {
		t.Fatalf("a.jpg 归一化不正确：%+v", got[0])
	}
	if got[1].Filename != "b.PNG" || got[1].MediaType != "image/png" {
		t.Fatalf("b.PNG 归一化不正确：%+v", got[1])
	}
}

func TestListImages_RecursiveDescends(t *testing.T) {
	srv, _ := newGraphServer(t)
	p := Provider{BaseURL: srv.URL, Client: srv.Client()}

	got, err := p.ListImages(context.Background(), shareRef, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{"a.jpg", "sub/c.heic", "b.PNG"}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，实际 %+v", want, got)
	}
	for i := range want {
		if got[i].Filename != want[i] {
			t.Fatalf("第 %d 条期望 %q，实际 %q", i, want[i], got[i].Filename)
		}
	}
	if got[1].MediaType != "image/heic" {
		t.Fatalf("无 file facet 时应按扩展名推断 MIME：%+v", got[1])
	}
}

func TestAlbumName(t *testing.T) {
	srv, _ := newGraphServer(t)
	name, err := Provider{BaseURL: srv.URL, Client: srv.Client()}.AlbumName(context.Background(), shareRef)
	if err != nil || name != "Trip 2024" {
		t.Fatalf("期望 Trip 2024，实际 %q err=%v", name, err)
	}
}

func TestListImages_InvalidRefNoNetwork(t *testing.T) {
	srv, hits := newGraphServer(t)
	_, err := Provider{BaseURL: srv.URL, Client: srv.Client()}.ListImages(context.Background(), "https://example.com/x", true)
	if !errors.Is(err, ErrInvalidShareURL) {
		t.Fatalf("期望 ErrInvalidShareURL，实际 %v", err)
	}
	var ce *catalog.Error
	if !errors.As(err, &ce) || ce.Stage != "resolve" {
		t.Fatalf("期望 stage=resolve 的 catalog.Error，实际 %v", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatalf("非法链接不应发起请求")
	}
}

func TestListImages_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Provider{BaseURL: srv.URL, Client: srv.Client()}.ListImages(context.Background(), shareRef, false)
	if !errors.Is(err, catalog.ErrUnauthorized) {
		t.Fatalf("期望 ErrUnauthorized，实际 %v", err)
	}
}

func TestListImages_NextLinkLoop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[],"@odata.nextLink":"` + srv.URL + `/loop"}`))
	}))
	defer srv.Close()

	if _, err := (Provider{BaseURL: srv.URL, Client: srv.Client()}).ListImages(context.Background(), shareRef, false); err == nil {
		t.Fatalf("nextLink 成环应报错")
	}
}

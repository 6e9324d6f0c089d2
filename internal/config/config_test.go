package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Album: "https://1drv.ms/a/s!x"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Concurrency != 5 || eff.MaxRetries != 3 || eff.Timeout != 60*time.Second {
		t.Fatalf("默认值不正确：%+v", eff)
	}
	if !eff.Recursive || !eff.AlbumSubdir || eff.Source != "auto" || eff.UserAgent != DefaultUserAgent {
		t.Fatalf("默认值不正确：%+v", eff)
	}
	if eff.Output != filepath.Join(cwd, "downloads") {
		t.Fatalf("期望 output=%q，实际 %q", filepath.Join(cwd, "downloads"), eff.Output)
	}
	if eff.ConfigPath != "" || eff.Ledger != "" {
		t.Fatalf("未读取配置文件时 ConfigPath/Ledger 应为空：%+v", eff)
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()
	_, err := LoadEffective(cwd, CLIArgs{Album: "x", ConfigPath: "missing.yaml"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_MissingAlbum(t *testing.T) {
	cwd := t.TempDir()
	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingAlbum {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingAlbum, err, Code(err))
	}
	if _, err := LoadEffective(cwd, CLIArgs{NoAlbum: true}); err != nil {
		t.Fatalf("NoAlbum 时不应要求相册：%v", err)
	}
}

func TestLoadEffective_FileValuesAndCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`
album: albums/trip.yaml
output: out
album_subdir: false
concurrency: 8
retries: 5
timeout: 15s
recursive: false
proxy:
  url: http://127.0.0.1:7890
rate_limit: 2.5
token_file: secrets/token
ledger: state/history.db
`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Album != filepath.Join(cwd, "albums", "trip.yaml") {
		t.Fatalf("album 应相对配置文件解析，实际 %q", eff.Album)
	}
	if eff.Output != filepath.Join(cwd, "out") || eff.AlbumSubdir {
		t.Fatalf("output/album_subdir 不正确：%+v", eff)
	}
	if eff.Concurrency != 8 || eff.MaxRetries != 5 || eff.Timeout != 15*time.Second || eff.Recursive {
		t.Fatalf("数值字段不正确：%+v", eff)
	}
	if eff.ProxyURL != "http://127.0.0.1:7890" || eff.RateLimit != 2.5 {
		t.Fatalf("proxy/rate_limit 不正确：%+v", eff)
	}
	if eff.TokenFile != filepath.Join(cwd, "secrets", "token") || eff.Ledger != filepath.Join(cwd, "state", "history.db") {
		t.Fatalf("token_file/ledger 不正确：%+v", eff)
	}
	if eff.ConfigPath != filepath.Join(cwd, FileName) {
		t.Fatalf("ConfigPath 不正确：%q", eff.ConfigPath)
	}

	// CLI 显式值覆盖配置文件（包括 false/0 这类零值）。
	eff2, err := LoadEffective(cwd, CLIArgs{
		Album:       "https://example.com/gallery/",
		Concurrency: ptr(2),
		Retries:     ptr(0),
		Recursive:   ptr(true),
		AlbumSubdir: ptr(true),
		Ledger:      ptr(""),
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Album != "https://example.com/gallery/" || eff2.Concurrency != 2 || eff2.MaxRetries != 0 || !eff2.Recursive || !eff2.AlbumSubdir {
		t.Fatalf("CLI 覆盖不正确：%+v", eff2)
	}
	if eff2.Ledger != "" {
		t.Fatalf("--ledger= 应关闭 ledger，实际 %q", eff2.Ledger)
	}
}

func TestLoadEffective_ConcurrencyClampAndReject(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Album: "x", Concurrency: ptr(100)})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Concurrency != MaxConcurrency {
		t.Fatalf("期望截断为 %d，实际 %d", MaxConcurrency, eff.Concurrency)
	}

	if _, err := LoadEffective(cwd, CLIArgs{Album: "x", Concurrency: ptr(0)}); Code(err) != ErrCodeInvalid {
		t.Fatalf("concurrency=0 期望 %q，实际 %v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"source":   "source: ftp\n",
		"timeout":  "timeout: soon\n",
		"retries":  "retries: -1\n",
		"proxy":    "proxy:\n  url: '127.0.0.1'\n",
		"graph":    "graph_base_url: ftp://x\n",
		"yaml":     "concurrency: [1\n",
		"rate":     "rate_limit: -1\n",
		"negative": "concurrency: -2\n",
	}
	for name, body := range cases {
		cwd := t.TempDir()
		writeFile(t, filepath.Join(cwd, FileName), []byte("album: x\n"+body))
		if _, err := LoadEffective(cwd, CLIArgs{}); Code(err) != ErrCodeInvalid {
			t.Fatalf("%s：期望 %q，实际 %v", name, ErrCodeInvalid, err)
		}
	}
}

func TestLoadEffective_ExplicitConfigRelativeToItsDir(t *testing.T) {
	cwd := t.TempDir()
	dir := filepath.Join(cwd, "conf")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(dir, "my.yaml"), []byte("album: https://1drv.ms/a/s!x\noutput: ../pics\n"))

	eff, err := LoadEffective(cwd, CLIArgs{ConfigPath: "conf/my.yaml"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Output != filepath.Join(cwd, "pics") {
		t.Fatalf("期望 output=%q，实际 %q", filepath.Join(cwd, "pics"), eff.Output)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

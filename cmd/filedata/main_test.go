package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	cfgpkg "filedata/internal/config"
	"filedata/internal/diag"
	"filedata/internal/pipeline"
)

// stubRun 替换流水线执行，记录收到的 Settings。
func stubRun(t *testing.T, res pipeline.Result, err error) *pipeline.Settings {
	t.Helper()
	var got pipeline.Settings
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Result, error) {
		got = set
		return res, err
	}
	t.Cleanup(func() { pipelineRun = orig })
	return &got
}

func setConfigJSON(t *testing.T, mut func(*cfgpkg.Config)) {
	t.Helper()
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{"-"}
	if mut != nil {
		mut(&cfg)
	}
	b, _ := json.Marshal(cfg)
	t.Setenv("FILEDATA_CONFIG_JSON", string(b))
}

func run(args ...string) (int, string, string) {
	var out, errb bytes.Buffer
	code := execute(args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestInitConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	code, out, _ := run("init-config", "cfg")
	if code != exitOK {
		t.Fatalf("init-config return %d", code)
	}
	if !strings.Contains(out, "已生成") {
		t.Fatalf("应提示已生成: %q", out)
	}
	cfg, err := cfgpkg.Load(filepath.Join("cfg", "config.json"), nil)
	if err != nil {
		t.Fatalf("模板应可解析: %v", err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		t.Fatalf("模板应通过校验: %v", err)
	}
	env, err := os.ReadFile(filepath.Join("cfg", ".env"))
	if err != nil || !strings.Contains(string(env), "FILEDATA_COMPONENTS_HANDLER=") {
		t.Fatalf(".env 模板缺失: %v", err)
	}
	// 不覆盖
	os.WriteFile(filepath.Join("cfg", "config.json"), []byte("{}"), 0o644)
	code, out, _ = run("init-config", "cfg")
	if code != exitOK || !strings.Contains(out, "跳过") {
		t.Fatalf("二次生成应跳过: %d %q", code, out)
	}
	if b, _ := os.ReadFile(filepath.Join("cfg", "config.json")); string(b) != "{}" {
		t.Fatalf("已存在的配置被覆盖")
	}
}

func TestInitConfigYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	if code, _, errs := run("init-config", "--yaml"); code != exitOK {
		t.Fatalf("init-config --yaml return %d: %s", code, errs)
	}
	cfg, err := cfgpkg.Load("config.yaml", nil)
	if err != nil {
		t.Fatalf("YAML 模板应可解析: %v", err)
	}
	want := cfgpkg.DefaultTemplateConfig()
	if cfg.Components != want.Components || cfg.Read != want.Read {
		t.Fatalf("YAML 模板内容不一致: %+v", cfg)
	}
	if _, _, err := cfgpkg.Assemble(cfg); err != nil {
		t.Fatalf("YAML 模板应可装配: %v", err)
	}
}

func TestHandlersCmd(t *testing.T) {
	code, out, _ := run("handlers")
	if code != exitOK {
		t.Fatalf("handlers return %d", code)
	}
	for _, s := range []string{"frontmatter", "sidecar", "checksum", "static", "callback"} {
		if !strings.Contains(out, s) {
			t.Fatalf("输出缺少 %s:\n%s", s, out)
		}
	}
	if code, _, _ := run("handlers", "extra"); code != exitConfig {
		t.Fatalf("多余参数应为配置错误, got %d", code)
	}
}

func TestRunSuccess(t *testing.T) {
	t.Chdir(t.TempDir())
	setConfigJSON(t, nil)
	got := stubRun(t, pipeline.Result{Files: 2, Written: 3}, nil)
	code, out, _ := run("--status=false")
	if code != exitOK {
		t.Fatalf("run return %d", code)
	}
	if got.HandlerName != "frontmatter" || got.Gate != nil {
		t.Fatalf("Settings 错误: %+v", got)
	}
	if !strings.Contains(out, "frontmatter") {
		t.Fatalf("应输出汇总表:\n%s", out)
	}
}

func TestRunFlagsOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	setConfigJSON(t, func(c *cfgpkg.Config) {
		c.Options.Handler = nil
		c.Limits.RPM = 0
	})
	t.Setenv("FILEDATA_READ", "stream")
	got := stubRun(t, pipeline.Result{}, nil)
	code, _, errs := run("--handler", "checksum", "--read", "none", "--rpm", "30", "--status=false", "a.txt")
	if code != exitOK {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if got.HandlerName != "checksum" || got.Read != pipeline.ReadNone {
		t.Fatalf("旗标未覆盖: %+v", got)
	}
	if got.Gate == nil || len(got.Inputs) != 1 || got.Inputs[0] != "a.txt" {
		t.Fatalf("rpm/roots 未生效: %+v", got)
	}
}

// ENV 高于配置文件，未显式设置的旗标不覆盖
func TestRunEnvPrecedence(t *testing.T) {
	t.Chdir(t.TempDir())
	setConfigJSON(t, nil)
	t.Setenv("FILEDATA_READ", "none")
	got := stubRun(t, pipeline.Result{}, nil)
	if code, _, errs := run("--status=false"); code != exitOK {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if got.Read != pipeline.ReadNone {
		t.Fatalf("ENV 未生效: %+v", got)
	}
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{"-"}
	cfg.Components.Handler = "static"
	cfg.Options.Handler = json.RawMessage(`{"data":{"k":1}}`)
	b, _ := json.Marshal(cfg)
	if err := os.WriteFile("config.json", b, 0o644); err != nil {
		t.Fatal(err)
	}
	got := stubRun(t, pipeline.Result{}, nil)
	if code, _, errs := run("--status=false"); code != exitOK {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if got.HandlerName != "static" {
		t.Fatalf("应读取工作目录 config.json: %+v", got)
	}
}

func TestRunFileErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	setConfigJSON(t, nil)
	stubRun(t, pipeline.Result{Errors: []error{errors.New("frontmatter: bad yaml")}}, nil)
	code, _, errs := run("--status=false")
	if code != exitFailed {
		t.Fatalf("存在单文件错误应返回 1, got %d", code)
	}
	if !strings.Contains(errs, "[error] frontmatter: bad yaml") {
		t.Fatalf("应输出错误事件: %q", errs)
	}
}

func TestRunPipelineError(t *testing.T) {
	t.Chdir(t.TempDir())
	setConfigJSON(t, nil)
	stubRun(t, pipeline.Result{}, errors.New("writer write: disk full"))
	code, _, errs := run("--status=false")
	if code != exitFailed || !strings.Contains(errs, "disk full") {
		t.Fatalf("运行失败应返回 1: %d %q", code, errs)
	}
}

func TestRunCanceledQuiet(t *testing.T) {
	t.Chdir(t.TempDir())
	setConfigJSON(t, nil)
	stubRun(t, pipeline.Result{}, context.Canceled)
	code, _, errs := run("--status=false")
	if code != exitFailed || strings.Contains(errs, "canceled") {
		t.Fatalf("取消应返回 1 且不输出错误: %d %q", code, errs)
	}
}

func TestRunConfigErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	stubRun(t, pipeline.Result{}, nil)
	cases := map[string]struct {
		env  string
		args []string
	}{
		"非法 JSON":     {`{"inputs":`, nil},
		"未知字段":        {`{"inputs":["a"],"bogus":1}`, nil},
		"无输入":         {`{}`, nil},
		"未注册 handler": {`{"inputs":["a"]}`, []string{"--handler", "nope"}},
		"非法 read":     {`{"inputs":["a"]}`, []string{"--read", "mmap"}},
		"未知旗标":        {`{"inputs":["a"]}`, []string{"--bogus"}},
		"缺少 data":     {`{"inputs":["a"],"components":{"handler":"static"},"options":{"writer":{"output_dir":"out"}}}`, nil},
	}
	for name, tc := range cases {
		t.Setenv("FILEDATA_CONFIG_JSON", tc.env)
		if code, _, _ := run(append(tc.args, "--status=false")...); code != exitConfig {
			t.Fatalf("%s: 期望退出码 3, got %d", name, code)
		}
	}
}

func TestPreflightCheckOutputDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	os.WriteFile(file, []byte("x"), 0o644)
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + jsonString(file) + `}`)
	if err := preflightCheckOutputDir(cfg); err == nil {
		t.Fatalf("输出路径为文件应失败")
	}
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + jsonString(filepath.Join(dir, "new")) + `}`)
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("父目录可写应通过: %v", err)
	}
	cfg.Options.Writer = json.RawMessage(`{"output_dir":` + jsonString(dir) + `}`)
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("已存在目录应通过: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 {
		t.Fatalf("预检不应留下临时文件: %v", entries)
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestFlagOverlayOnlyChanged(t *testing.T) {
	var f rootFlags
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	fs.StringVar(&f.handler, "handler", "", "")
	fs.IntVar(&f.rpm, "rpm", 0, "")
	if err := fs.Parse([]string{"--handler", "static"}); err != nil {
		t.Fatal(err)
	}
	over := flagOverlay(&f, fs, nil)
	if over.Components.Handler != "static" || over.Limits.RPM != -1 || over.Inputs != nil {
		t.Fatalf("仅显式旗标应覆盖: %+v", over)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	content := "# c\nexport FD_T_A=1\nFD_T_B=\"x\\ny\"\nFD_T_C='q'\nFD_T_KEEP=new\nFD_T_EMPTY=\nFD_T_D=v # 注释\n"
	os.WriteFile(p, []byte(content), 0o644)
	t.Setenv("FD_T_KEEP", "old")
	for _, k := range []string{"FD_T_A", "FD_T_B", "FD_T_C", "FD_T_D", "FD_T_EMPTY"} {
		k := k
		t.Cleanup(func() { os.Unsetenv(k) })
	}
	if err := loadDotEnv(p); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if os.Getenv("FD_T_A") != "1" || os.Getenv("FD_T_B") != "x\ny" || os.Getenv("FD_T_C") != "q" || os.Getenv("FD_T_D") != "v" {
		t.Fatalf("解析错误: %q %q %q %q", os.Getenv("FD_T_A"), os.Getenv("FD_T_B"), os.Getenv("FD_T_C"), os.Getenv("FD_T_D"))
	}
	if os.Getenv("FD_T_KEEP") != "old" {
		t.Fatalf("不应覆盖已有 ENV")
	}
	if _, ok := os.LookupEnv("FD_T_EMPTY"); ok {
		t.Fatalf("空值不应注入")
	}
	if err := loadDotEnv(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("缺失文件应忽略: %v", err)
	}
	bad := filepath.Join(dir, "bad.env")
	os.WriteFile(bad, []byte("FD_T_X=\"unterminated\n"), 0o644)
	if err := loadDotEnv(bad); err == nil {
		t.Fatalf("格式错误应上报")
	}
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/export"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/source"
	"github.com/matzehuels/backdrop/pkg/template"
	"github.com/matzehuels/backdrop/pkg/template/templatetest"
)

// scriptedPrompter answers prompts from fixed lists and checks every input
// answer against the prompt's validator.
type scriptedPrompter struct {
	t       *testing.T
	inputs  []string
	confirm bool
	picks   []int

	asked    []string
	defaults [][]int
}

func (p *scriptedPrompter) Input(ctx context.Context, cfg InputConfig) (string, error) {
	p.asked = append(p.asked, cfg.Message)
	if len(p.inputs) == 0 {
		p.t.Fatalf("unexpected prompt %q", cfg.Message)
	}
	answer := p.inputs[0]
	p.inputs = p.inputs[1:]
	if cfg.Validator != nil {
		if err := cfg.Validator(answer); err != nil {
			p.t.Errorf("answer %q to %q rejected: %v", answer, cfg.Message, err)
		}
	}
	return answer, nil
}

func (p *scriptedPrompter) Confirm(ctx context.Context, message string, def bool) (bool, error) {
	p.asked = append(p.asked, message)
	return p.confirm, nil
}

func (p *scriptedPrompter) MultiSelect(ctx context.Context, cfg SelectConfig) ([]int, error) {
	p.asked = append(p.asked, cfg.Message)
	p.defaults = append(p.defaults, cfg.Defaults)
	return p.picks, nil
}

type env struct {
	cli      *CLI
	prompter *scriptedPrompter
	out      *bytes.Buffer
	cacheDir string
	formDir  string
}

// newEnv writes a bundle with the small and flat fixtures plus a config
// pointing at it, and captures stdout.
func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	bundle := filepath.Join(root, "templates")
	writeBundle(t, bundle, templatetest.Small(), templatetest.Flat())

	e := &env{
		prompter: &scriptedPrompter{t: t},
		out:      &bytes.Buffer{},
		cacheDir: filepath.Join(root, "cache"),
		formDir:  filepath.Join(root, "config"),
	}
	cfgPath := filepath.Join(root, "config.toml")
	cfg := fmt.Sprintf(`[source]
bundle = %q

[export]
concurrency = 2
delay = "1ms"

[cache]
backend = "file"
dir = %q
`, bundle, e.cacheDir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	e.cli = New(io.Discard, LogInfo)
	e.cli.Prompter = e.prompter
	e.cli.configPath = cfgPath
	e.cli.formDir = e.formDir

	old := stdout
	stdout = e.out
	t.Cleanup(func() { stdout = old })
	return e
}

func (e *env) run(t *testing.T, args ...string) error {
	t.Helper()
	root := e.cli.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func (e *env) saveForm(t *testing.T, d form.Data) {
	t.Helper()
	store, err := form.NewStore(e.formDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), d); err != nil {
		t.Fatal(err)
	}
}

func writeBundle(t *testing.T, dir string, tpls ...*template.Template) {
	t.Helper()
	set := make([]source.Fetched, 0, len(tpls))
	for _, tpl := range tpls {
		set = append(set, source.Fetched{
			Entry:  template.Entry{ID: tpl.ID, Name: tpl.ID, DisplayName: tpl.DisplayName, NodeID: tpl.NodeID},
			Layout: &template.Layout{TextLayers: tpl.Fields, Frames: tpl.Frames, Width: tpl.Width, Height: tpl.Height},
			Image:  tpl.Background.Data,
		})
	}
	if err := source.WriteBundle(dir, set); err != nil {
		t.Fatal(err)
	}
}

func tanaka(ids ...string) form.Data {
	return form.Data{
		LastNameJP:        "田中",
		FirstNameJP:       "太郎",
		LastNameEN:        "Tanaka",
		FirstNameEN:       "Taro",
		Role:              "Engineer",
		SelectedTemplates: ids,
	}
}

func TestGenerateSingle(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))
	out := t.TempDir()

	if err := e.run(t, "generate", "-o", out, "--no-progress"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "Tanaka_Taro_small.png"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
	if !strings.Contains(e.out.String(), "Tanaka_Taro_small.png") {
		t.Errorf("output does not name the file:\n%s", e.out.String())
	}
	if len(e.prompter.asked) != 0 {
		t.Errorf("unexpected prompts %v", e.prompter.asked)
	}
}

func TestGenerateArgsReplaceSelection(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))
	out := t.TempDir()

	if err := e.run(t, "generate", "small", "flat", "-o", out, "--no-progress", "--rasterizer", "composite"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "Tanaka_Taro_backgrounds.zip")); err != nil {
		t.Errorf("archive missing: %v", err)
	}
}

func TestGenerateConfirmDeclined(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small", "flat", "basic", "oudan"))
	out := t.TempDir()

	if err := e.run(t, "generate", "-o", out); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if diff := cmp.Diff([]string{"Export 4 backgrounds?"}, e.prompter.asked); diff != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", diff)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("declined export wrote %d files", len(entries))
	}
}

func TestGenerateInvalidForm(t *testing.T) {
	e := newEnv(t)

	err := e.run(t, "generate", "-o", t.TempDir())
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
	for _, field := range []string{form.FieldLastNameJP, form.FieldFirstNameEN, "selected_templates"} {
		if !strings.Contains(e.out.String(), field) {
			t.Errorf("output does not mention %s:\n%s", field, e.out.String())
		}
	}
}

func TestGenerateUnknownTemplate(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))

	err := e.run(t, "generate", "missing", "-o", t.TempDir(), "--no-progress")
	if !errors.Is(err, errors.ErrCodeTemplateNotFound) {
		t.Errorf("err = %v, want TEMPLATE_NOT_FOUND", err)
	}
}

func TestGenerateFromFile(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(t.TempDir(), "me.json")
	data, _ := json.Marshal(tanaka("small"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	if err := e.run(t, "generate", "--form", path, "-o", out, "--no-progress", "--format", "jpeg"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "Tanaka_Taro_small.jpg")); err != nil {
		t.Errorf("jpeg missing: %v", err)
	}
}

func TestFormCommand(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, form.Data{SelectedTemplates: []string{"flat"}})
	e.prompter.inputs = []string{"田中", "太郎", "Tanaka", "Taro", "", "", "Dev / Ops", "Engineer"}
	e.prompter.picks = []int{1}

	if err := e.run(t, "form"); err != nil {
		t.Fatalf("form: %v", err)
	}
	if diff := cmp.Diff([][]int{{0}}, e.prompter.defaults); diff != "" {
		t.Errorf("template defaults mismatch (-want +got):\n%s", diff)
	}

	store, _ := form.NewStore(e.formDir)
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := tanaka("small")
	want.Group = form.GroupList{"Dev", "Ops"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("saved form mismatch (-want +got):\n%s", diff)
	}
}

func TestFormShowAndReset(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))

	if err := e.run(t, "form", "show"); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"田中", "Tanaka", "small", "Tanaka_Taro_"} {
		if !strings.Contains(e.out.String(), s) {
			t.Errorf("form show missing %q:\n%s", s, e.out.String())
		}
	}

	if err := e.run(t, "form", "reset"); err != nil {
		t.Fatal(err)
	}
	store, _ := form.NewStore(e.formDir)
	got, _ := store.Load(context.Background())
	if got.LastNameJP != "" {
		t.Errorf("form not reset: %+v", got)
	}
}

func TestFieldValidator(t *testing.T) {
	tests := []struct {
		field, value string
		want         string
	}{
		{form.FieldLastNameJP, "田中", ""},
		{form.FieldLastNameJP, "Tanaka", form.MsgJapanese},
		{form.FieldLastNameEN, "", form.MsgRequired},
		{form.FieldLastNameEN, "田中", form.MsgEnglish},
		{form.FieldRole, "", ""},
		{form.FieldRole, strings.Repeat("a", form.MaxFieldLength+1), fmt.Sprintf(form.MsgTooLong, form.MaxFieldLength)},
		{form.FieldGroup, "Dev / " + strings.Repeat("b", form.MaxFieldLength+1), fmt.Sprintf(form.MsgTooLong, form.MaxFieldLength)},
	}
	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			err := fieldValidator(form.Data{}, tt.field)(tt.value)
			got := ""
			if err != nil {
				got = err.Error()
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplatesCommand(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))

	if err := e.run(t, "templates"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"small", "flat"} {
		if !strings.Contains(e.out.String(), id) {
			t.Errorf("templates output missing %s:\n%s", id, e.out.String())
		}
	}
}

func TestPreviewCommand(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))
	path := filepath.Join(t.TempDir(), "small.svg")

	if err := e.run(t, "preview", "small", "-o", path, "--width", "480", "--height", "540"); err != nil {
		t.Fatalf("preview: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("<svg")) {
		t.Error("preview is not SVG")
	}
}

func TestCacheCommands(t *testing.T) {
	e := newEnv(t)
	e.saveForm(t, tanaka("small"))

	if err := e.run(t, "cache", "path"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(e.out.String()); got != e.cacheDir {
		t.Errorf("cache path = %q, want %q", got, e.cacheDir)
	}

	if err := e.run(t, "generate", "-o", t.TempDir(), "--no-progress"); err != nil {
		t.Fatal(err)
	}
	e.out.Reset()
	if err := e.run(t, "cache", "clear"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.out.String(), "Cleared") || strings.Contains(e.out.String(), "Cleared 0 ") {
		t.Errorf("cache clear output:\n%s", e.out.String())
	}
}

func TestRootCommandKeepsPresetFlags(t *testing.T) {
	c := New(io.Discard, LogInfo)
	c.configPath = "/etc/backdrop/config.toml"
	c.noCache = true
	for range 2 {
		root := c.RootCommand()
		if err := root.ParseFlags(nil); err != nil {
			t.Fatal(err)
		}
		if c.configPath != "/etc/backdrop/config.toml" || !c.noCache {
			t.Fatalf("RootCommand reset preset flags: config=%q no-cache=%v", c.configPath, c.noCache)
		}
	}
}

func TestConfigFlagOverridesPreset(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(t.TempDir(), "other.toml")
	dir := filepath.Join(t.TempDir(), "other-cache")
	if err := os.WriteFile(other, []byte(fmt.Sprintf("[cache]\ndir = %q\n", dir)), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := e.run(t, "--config", other, "cache", "path"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(e.out.String()); got != dir {
		t.Errorf("cache path = %q, want %q", got, dir)
	}
}

func TestFetchRequiresToken(t *testing.T) {
	e := newEnv(t)
	t.Setenv("FIGMA_ACCESS_TOKEN", "")

	if err := e.run(t, "fetch"); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestVersionCommand(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "version"); err != nil {
		t.Fatal(err)
	}
	out := e.out.String()
	if !strings.HasPrefix(out, "backdrop ") || !strings.Contains(out, "\ncommit: ") {
		t.Errorf("version output = %q", out)
	}
}

func TestErrorMessage(t *testing.T) {
	pf := &export.PartialFailureError{
		Failed: 1,
		Total:  2,
		Results: []export.TaskResult{
			{Name: "basic", Status: export.StatusSuccess},
			{Name: "oudan", Status: export.StatusError, Err: errors.New(errors.ErrCodeRasterTimeout, "timed out")},
		},
	}
	tests := []struct {
		err  error
		want string
	}{
		{errors.New(errors.ErrCodeInvalidInput, "bad form"), "bad form"},
		{io.ErrUnexpectedEOF, "unexpected EOF"},
		{pf, "failed to generate 1 of 2 images (oudan), please try again"},
	}
	for _, tt := range tests {
		if got := ErrorMessage(tt.err); got != tt.want {
			t.Errorf("ErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCacheKeyer(t *testing.T) {
	cfg := config.Default()
	if k := cacheKeyer(cfg); k != nil {
		t.Errorf("cacheKeyer() without prefix = %T, want nil", k)
	}
	cfg.Cache.Prefix = "staging:"
	k := cacheKeyer(cfg)
	if k == nil {
		t.Fatal("cacheKeyer() = nil with a prefix")
	}
	if got := k.TemplateKey("bundle", "basic"); !strings.HasPrefix(got, "staging:") {
		t.Errorf("TemplateKey() = %q, want staging: prefix", got)
	}
}

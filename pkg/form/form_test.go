package form

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/backdrop/pkg/errors"
)

func tanaka() Data {
	return Data{
		LastNameJP:        "田中",
		FirstNameJP:       "太郎",
		LastNameEN:        "Tanaka",
		FirstNameEN:       "Taro",
		SelectedTemplates: []string{"basic"},
	}
}

func TestValue(t *testing.T) {
	d := tanaka()
	d.Department1 = "ferret事業部"
	d.Group = GroupList{"インサイドセールス", "  ", "プロダクト"}
	d.Role = "マネージャー"

	tests := []struct {
		field string
		want  string
	}{
		{FieldLastNameJP, "田中"},
		{FieldFirstNameEN, "Taro"},
		{FieldDepartment1, "ferret事業部"},
		{FieldDepartment2, ""},
		{FieldGroup, "インサイドセールス / プロダクト"},
		{FieldRole, "マネージャー"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := d.Value(tt.field); got != tt.want {
			t.Errorf("Value(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}

	d.Affiliation = "ferret事業部\nマーケティング部"
	if got := d.Value(FieldGroup); got != d.Affiliation {
		t.Errorf("Value(group) with affiliation = %q", got)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Data)
		want   bool
	}{
		{"complete", func(*Data) {}, true},
		{"missing last jp", func(d *Data) { d.LastNameJP = "" }, false},
		{"blank first en", func(d *Data) { d.FirstNameEN = "   " }, false},
		{"no templates", func(d *Data) { d.SelectedTemplates = nil }, false},
		{"optional fields empty", func(d *Data) { d.Role, d.Group = "", nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tanaka()
			tt.modify(&d)
			if got := d.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsConfirm(t *testing.T) {
	d := tanaka()
	d.SelectedTemplates = []string{"a", "b", "c"}
	if d.NeedsConfirm() {
		t.Error("3 templates should not need confirmation")
	}
	d.SelectedTemplates = append(d.SelectedTemplates, "d")
	if !d.NeedsConfirm() {
		t.Error("4 templates should need confirmation")
	}
}

func TestValidate(t *testing.T) {
	if fe := tanaka().Validate(); fe != nil {
		t.Fatalf("Validate() = %v, want nil", fe)
	}

	d := Data{
		LastNameJP:        "Tanaka",
		FirstNameJP:       "",
		LastNameEN:        "田中",
		FirstNameEN:       "Taroooooooooooooooooo",
		Department2:       "あいうえおかきくけこさしすせそたちつてとなにぬねのはひふへほま",
		Group:             GroupList{"ok", "あいうえおかきくけこさしすせそたちつてとなにぬねのはひふへほま"},
		SelectedTemplates: []string{"../etc"},
	}
	want := FieldErrors{
		FieldLastNameJP:      MsgJapanese,
		FieldFirstNameJP:     MsgRequired,
		FieldLastNameEN:      MsgEnglish,
		FieldFirstNameEN:     "20文字以内で入力してください",
		FieldDepartment2:     "30文字以内で入力してください",
		"group[1]":           "30文字以内で入力してください",
		"selected_templates": `invalid template id: "../etc"`,
	}
	if diff := cmp.Diff(want, d.Validate()); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}

	err := d.Check()
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Check() error = %v, want INVALID_INPUT", err)
	}
}

func TestNormalize(t *testing.T) {
	d := Data{
		LastNameJP:        "  田中 ",
		LastNameEN:        "<b>Tanaka</b>",
		Department1:       "R&D",
		Group:             GroupList{"", " <script>x</script>", "営業"},
		SelectedTemplates: []string{"basic", " basic", "run", ""},
	}
	got := d.Normalize()
	want := Data{
		LastNameJP:        "田中",
		LastNameEN:        "Tanaka",
		Department1:       "R&D",
		Group:             GroupList{"営業"},
		SelectedTemplates: []string{"basic", "run"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestFileNames(t *testing.T) {
	tests := []struct {
		name        string
		data        Data
		wantFile    string
		wantArchive string
	}{
		{
			name:        "romanized",
			data:        tanaka(),
			wantFile:    "Tanaka_Taro_basic.png",
			wantArchive: "Tanaka_Taro_backgrounds.zip",
		},
		{
			name:        "japanese fallback",
			data:        Data{LastNameJP: "田中", FirstNameJP: "太郎"},
			wantFile:    "______basic.png",
			wantArchive: "田中_太郎_backgrounds.zip",
		},
		{
			name:        "spaces",
			data:        Data{LastNameEN: "Van Dyke", FirstNameEN: "A/B"},
			wantFile:    "Van_Dyke_A_B_basic.png",
			wantArchive: "Van Dyke_A_B_backgrounds.zip",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.data.FileName("basic", ""); got != tt.wantFile {
				t.Errorf("FileName() = %q, want %q", got, tt.wantFile)
			}
			if got := tt.data.ArchiveName(); got != tt.wantArchive {
				t.Errorf("ArchiveName() = %q, want %q", got, tt.wantArchive)
			}
		})
	}
}

func TestGroupListLegacyString(t *testing.T) {
	var d Data
	if err := json.Unmarshal([]byte(`{"group": "営業グループ"}`), &d); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(GroupList{"営業グループ"}, d.Group); diff != "" {
		t.Errorf("Group mismatch (-want +got):\n%s", diff)
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty store: %v", err)
	}
	if diff := cmp.Diff(Data{}, got); diff != "" {
		t.Errorf("empty Load() mismatch (-want +got):\n%s", diff)
	}

	d := tanaka()
	d.Group = GroupList{"営業"}
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("Reset() left the file behind: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Errorf("second Reset() error: %v", err)
	}
}

func TestStorePartialData(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)
	content := `{"last_name_jp": "田中", "first_name_en": 42, "group": "営業", "selected_templates": ["run"], "extra": true}`
	if err := os.WriteFile(filepath.Join(dir, StorageKey+".json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Data{LastNameJP: "田中", Group: GroupList{"営業"}, SelectedTemplates: []string{"run"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	os.WriteFile(s.Path(), []byte("{not json"), 0o600)
	got, err = s.Load(context.Background())
	if err != nil || got.LastNameJP != "" {
		t.Errorf("corrupt file: Load() = %+v, %v; want defaults", got, err)
	}
}

func TestExampleForm(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "examples", "form.json"))
	if err != nil {
		t.Fatal(err)
	}
	var d Data
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if fe := d.Normalize().Validate(); fe != nil {
		t.Errorf("Validate() = %v", fe)
	}
	if got := d.Group.Text(); got != "Platform / SRE" {
		t.Errorf("Group.Text() = %q", got)
	}
}

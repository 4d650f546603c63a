package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/form"
)

// formQuestion is one text field asked by "backdrop form".
type formQuestion struct {
	field   string
	message string
	help    string
}

var formQuestions = []formQuestion{
	{form.FieldLastNameJP, "姓 (last name, Japanese)", "Written in kanji or kana, e.g. 田中"},
	{form.FieldFirstNameJP, "名 (first name, Japanese)", "Written in kanji or kana, e.g. 太郎"},
	{form.FieldLastNameEN, "Last name (English)", "Latin letters only; used in file names"},
	{form.FieldFirstNameEN, "First name (English)", "Latin letters only; used in file names"},
	{form.FieldDepartment1, "Department", "Optional"},
	{form.FieldDepartment2, "Sub-department", "Optional"},
	{form.FieldGroup, "Group", "Optional; separate several with " + strings.TrimSpace(form.GroupSeparator)},
	{form.FieldRole, "Role", "Optional, e.g. Engineer"},
}

// formCommand creates the form command and its subcommands.
func (c *CLI) formCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Fill in your name, affiliation and templates",
		Long: `Ask for every form field and save the answers for later runs.
Press enter to keep the current value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runForm(cmd.Context())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFormShow(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the saved form",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := form.NewStore(c.formDir)
			if err != nil {
				return err
			}
			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Form cleared")
			return nil
		},
	})

	return cmd
}

func (c *CLI) runForm(ctx context.Context) error {
	store, err := form.NewStore(c.formDir)
	if err != nil {
		return err
	}
	d, err := store.Load(ctx)
	if err != nil {
		return err
	}

	p := c.prompter()
	for _, q := range formQuestions {
		answer, err := p.Input(ctx, InputConfig{
			Message:   q.message,
			Default:   d.Value(q.field),
			Help:      q.help,
			Validator: fieldValidator(d, q.field),
		})
		if err != nil {
			return err
		}
		setField(&d, q.field, answer)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	src, err := c.newSource(cfg, cache.NewNullCache())
	if err != nil {
		return err
	}
	entries, err := src.List(ctx)
	if err != nil {
		return err
	}
	options := make([]string, len(entries))
	var defaults []int
	for i, e := range entries {
		options[i] = e.DisplayName
		for _, id := range d.SelectedTemplates {
			if id == e.ID {
				defaults = append(defaults, i)
			}
		}
	}
	picked, err := p.MultiSelect(ctx, SelectConfig{
		Message:  "Templates",
		Options:  options,
		Defaults: defaults,
		PageSize: 12,
	})
	if err != nil {
		return err
	}
	d.SelectedTemplates = d.SelectedTemplates[:0]
	for _, i := range picked {
		d.SelectedTemplates = append(d.SelectedTemplates, entries[i].ID)
	}

	d = d.Normalize()
	if err := store.Save(ctx, d); err != nil {
		return err
	}
	printSuccess("Form saved")
	printFile(store.Path())
	if fe := d.Validate(); fe != nil {
		printWarning("Some fields still need attention")
		printFieldErrors(fe)
		return nil
	}
	printNextStep("Export your backgrounds with", "backdrop generate")
	return nil
}

func (c *CLI) runFormShow(ctx context.Context) error {
	store, err := form.NewStore(c.formDir)
	if err != nil {
		return err
	}
	d, err := store.Load(ctx)
	if err != nil {
		return err
	}
	for _, q := range formQuestions {
		printKeyValue(q.field, d.Value(q.field))
	}
	printKeyValue("templates", strings.Join(d.SelectedTemplates, ", "))
	if d.IsValid() {
		printKeyValue("file", d.FileName("<template>", "png"))
	}
	return nil
}

// readForm loads the form from path, or from the saved store when path is
// empty.
func (c *CLI) readForm(ctx context.Context, path string) (form.Data, error) {
	if path == "" {
		store, err := form.NewStore(c.formDir)
		if err != nil {
			return form.Data{}, err
		}
		return store.Load(ctx)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return form.Data{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "read form %s", path)
	}
	var d form.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return form.Data{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse form %s", path)
	}
	return d, nil
}

// fieldValidator checks a single answer with the form's own rules.
func fieldValidator(d form.Data, field string) func(string) error {
	return func(s string) error {
		d := d.Clone()
		setField(&d, field, s)
		fe := d.Validate()
		for name, msg := range fe {
			if name == field || strings.HasPrefix(name, field+"[") {
				return stderrors.New(msg)
			}
		}
		return nil
	}
}

func setField(d *form.Data, field, v string) {
	v = strings.TrimSpace(v)
	switch field {
	case form.FieldLastNameJP:
		d.LastNameJP = v
	case form.FieldFirstNameJP:
		d.FirstNameJP = v
	case form.FieldLastNameEN:
		d.LastNameEN = v
	case form.FieldFirstNameEN:
		d.FirstNameEN = v
	case form.FieldDepartment1:
		d.Department1 = v
	case form.FieldDepartment2:
		d.Department2 = v
	case form.FieldGroup:
		d.Affiliation = ""
		d.Group = nil
		for _, part := range strings.Split(v, strings.TrimSpace(form.GroupSeparator)) {
			if part = strings.TrimSpace(part); part != "" {
				d.Group = append(d.Group, part)
			}
		}
	case form.FieldRole:
		d.Role = v
	}
}
